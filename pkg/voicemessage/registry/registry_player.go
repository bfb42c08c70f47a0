package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type PlayerPCMFactory interface {
	NewPlayerPCM() (types.PlayerPCM, error)
}

type playerFactoryWithPriority struct {
	Priority int
	PlayerPCMFactory
}

var (
	playerFactoryRegistryLocker sync.Mutex
	playerFactoryRegistry       = map[reflect.Type]playerFactoryWithPriority{}
)

func RegisterPlayerFactory(
	priority int,
	playerPCMFactory PlayerPCMFactory,
) {
	t := factoryType(playerPCMFactory)

	playerFactoryRegistryLocker.Lock()
	defer playerFactoryRegistryLocker.Unlock()
	if _, ok := playerFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of PlayerPCM of type %v", t))
	}
	playerFactoryRegistry[t] = playerFactoryWithPriority{
		Priority:         priority,
		PlayerPCMFactory: playerPCMFactory,
	}
}

func UnregisterPlayerFactory(playerPCMFactory PlayerPCMFactory) {
	t := factoryType(playerPCMFactory)

	playerFactoryRegistryLocker.Lock()
	defer playerFactoryRegistryLocker.Unlock()
	delete(playerFactoryRegistry, t)
}

func PlayerFactories() []PlayerPCMFactory {
	playerFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []playerFactoryWithPriority
	for _, factory := range playerFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	playerFactoryRegistryLocker.Unlock()

	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []PlayerPCMFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.PlayerPCMFactory)
	}

	return factories
}
