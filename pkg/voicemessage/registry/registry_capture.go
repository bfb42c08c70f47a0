package registry

import (
	"fmt"
	"reflect"
	"sort"
	"sync"

	"github.com/xaionaro-go/voicemessage/pkg/voicemessage/types"
)

type CaptureDeviceFactory interface {
	NewCaptureDevice() (types.CaptureDevice, error)
}

type captureFactoryWithPriority struct {
	Priority int
	CaptureDeviceFactory
}

var (
	captureFactoryRegistryLocker sync.Mutex
	captureFactoryRegistry       = map[reflect.Type]captureFactoryWithPriority{}
)

func RegisterCaptureFactory(
	priority int,
	captureDeviceFactory CaptureDeviceFactory,
) {
	t := factoryType(captureDeviceFactory)

	captureFactoryRegistryLocker.Lock()
	defer captureFactoryRegistryLocker.Unlock()
	if _, ok := captureFactoryRegistry[t]; ok {
		panic(fmt.Errorf("there is already registered a factory of CaptureDevice of type %v", t))
	}
	captureFactoryRegistry[t] = captureFactoryWithPriority{
		Priority:             priority,
		CaptureDeviceFactory: captureDeviceFactory,
	}
}

func UnregisterCaptureFactory(captureDeviceFactory CaptureDeviceFactory) {
	t := factoryType(captureDeviceFactory)

	captureFactoryRegistryLocker.Lock()
	defer captureFactoryRegistryLocker.Unlock()
	delete(captureFactoryRegistry, t)
}

// CaptureFactories returns the registered factories, the highest priority first.
func CaptureFactories() []CaptureDeviceFactory {
	captureFactoryRegistryLocker.Lock()
	var factoriesWithPriorities []captureFactoryWithPriority
	for _, factory := range captureFactoryRegistry {
		factoriesWithPriorities = append(factoriesWithPriorities, factory)
	}
	captureFactoryRegistryLocker.Unlock()

	sort.SliceStable(factoriesWithPriorities, func(i, j int) bool {
		return factoriesWithPriorities[i].Priority > factoriesWithPriorities[j].Priority
	})

	var factories []CaptureDeviceFactory
	for _, factory := range factoriesWithPriorities {
		factories = append(factories, factory.CaptureDeviceFactory)
	}

	return factories
}

func factoryType(factory any) reflect.Type {
	t := reflect.ValueOf(factory).Type()
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}
