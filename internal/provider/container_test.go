package provider

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cardinal-rs/cardinal/internal/cardinalerr"
)

type widget struct{ id int }

func TestGet_NotRegistered(t *testing.T) {
	c := NewContainer()
	_, err := Get[*widget](c)
	require.Error(t, err)
	var notRegistered *cardinalerr.ProviderNotRegistered
	require.ErrorAs(t, err, &notRegistered)
}

func TestSingleton_ConstructedOnce(t *testing.T) {
	c := NewContainer()
	var builds int32
	Register[*widget](c, Singleton, func(*Container) (*widget, error) {
		atomic.AddInt32(&builds, 1)
		return &widget{id: 1}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := Get[*widget](c)
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), atomic.LoadInt32(&builds))
}

func TestTransient_ConstructsEveryCall(t *testing.T) {
	c := NewContainer()
	var n int
	Register[*widget](c, Transient, func(*Container) (*widget, error) {
		n++
		return &widget{id: n}, nil
	})

	first, err := Get[*widget](c)
	require.NoError(t, err)
	second, err := Get[*widget](c)
	require.NoError(t, err)

	require.Equal(t, 1, first.id)
	require.Equal(t, 2, second.id)
}

func TestRegisterSingletonInstance_ReturnsSameValue(t *testing.T) {
	c := NewContainer()
	RegisterSingletonInstance[*widget](c, &widget{id: 42})

	v, err := Get[*widget](c)
	require.NoError(t, err)
	require.Equal(t, 42, v.id)
}

func TestFactoryError_Wrapped(t *testing.T) {
	c := NewContainer()
	Register[*widget](c, Singleton, func(*Container) (*widget, error) {
		return nil, errors.New("boom")
	})

	_, err := Get[*widget](c)
	require.Error(t, err)
	var factoryErr *cardinalerr.FactoryError
	require.ErrorAs(t, err, &factoryErr)
}

func TestTransient_ConcurrentResolvesDoNotTripCycleDetection(t *testing.T) {
	c := NewContainer()
	var n int32
	Register[*widget](c, Transient, func(*Container) (*widget, error) {
		atomic.AddInt32(&n, 1)
		return &widget{}, nil
	})

	var wg sync.WaitGroup
	errs := make([]error, 20)
	for i := 0; i < len(errs); i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = Get[*widget](c)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, int32(20), atomic.LoadInt32(&n))
}

func TestCycleDetected(t *testing.T) {
	c := NewContainer()
	Register[*widget](c, Transient, func(container *Container) (*widget, error) {
		return Get[*widget](container)
	})

	_, err := Get[*widget](c)
	require.Error(t, err)
	var cycle *cardinalerr.CycleDetected
	require.ErrorAs(t, err, &cycle)
}
