package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type DecoderFactory interface {
	NewDecoder() (types.Decoder, error)
}

type decoderFactoryWithPriority struct {
	Priority int
	DecoderFactory
}

var (
	decoderFactoryRegistryLocker sync.Mutex
	decoderFactoryRegistry       = map[reflect.Type]decoderFactoryWithPriority{}
)

func RegisterDecoderFactory(
	priority int,
	decoderFactory DecoderFactory,
) {
	t := factoryType(decoderFactory)

	decoderFactoryRegistryLocker.Lock()
	defer decoderFactoryRegistryLocker.Unlock()
	if _, ok := decoderFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of Decoder of type %v", t))
	}
	decoderFactoryRegistry[t] = decoderFactoryWithPriority{
		Priority:       priority,
		DecoderFactory: decoderFactory,
	}
}

func UnregisterDecoderFactory(decoderFactory DecoderFactory) {
	t := factoryType(decoderFactory)

	decoderFactoryRegistryLocker.Lock()
	defer decoderFactoryRegistryLocker.Unlock()
	delete(decoderFactoryRegistry, t)
}

// DecoderFactories returns the registered factories, the highest priority first.
func DecoderFactories() []DecoderFactory {
	decoderFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []decoderFactoryWithPriority
	for _, factory := range decoderFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	decoderFactoryRegistryLocker.Unlock()

	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []DecoderFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.DecoderFactory)
	}
	return factories
}
