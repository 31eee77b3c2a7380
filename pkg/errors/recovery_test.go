package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeExecute(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		err := SafeExecute("fit fold", func() error { return nil })
		assert.NoError(t, err)
	})

	t.Run("function error passes through", func(t *testing.T) {
		want := fmt.Errorf("fit failed")
		err := SafeExecute("fit fold", func() error { return want })
		assert.Equal(t, want, err)
	})

	t.Run("panic becomes PanicError", func(t *testing.T) {
		err := SafeExecute("fit fold", func() error {
			var rows []int
			_ = rows[3]
			return nil
		})
		require.Error(t, err)

		var panicErr *PanicError
		require.True(t, As(err, &panicErr))
		assert.Equal(t, "fit fold", panicErr.Operation)
		assert.Contains(t, panicErr.Error(), "panic in fit fold")
		assert.True(t, strings.Contains(panicErr.String(), "Stack trace:"))
		assert.Contains(t, panicErr.Stack, "runtime/debug.Stack")
	})
}

func TestRecover_DifferentPanicTypes(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  string
	}{
		{"string", "nil tree", "panic in op: nil tree"},
		{"int", 42, "panic in op: 42"},
		{"error", New("bad split"), "panic in op: bad split"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := SafeExecute("op", func() error { panic(tt.value) })
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestRecover_WithExistingError(t *testing.T) {
	run := func() (err error) {
		defer Recover(&err, "meta fit")
		err = New("first failure")
		panic("second failure")
	}

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first failure")
	assert.Contains(t, fmt.Sprintf("%+v", err), "second failure")
}

func TestPanicError_UnwrapsErrorValue(t *testing.T) {
	base := New("root cause")
	err := SafeExecute("op", func() error { panic(base) })
	assert.True(t, Is(err, base))

	err = SafeExecute("op", func() error { panic("not an error") })
	var pe *PanicError
	require.True(t, As(err, &pe))
	assert.Nil(t, pe.Unwrap())
}
