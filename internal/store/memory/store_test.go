package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/feichai0017/ipo-quickread/internal/store"
	"github.com/feichai0017/ipo-quickread/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T, now func() time.Time) store.FilingStore {
		return New(WithClock(now))
	})
}

func TestStore_Kind(t *testing.T) {
	s := New()
	assert.Equal(t, store.KindMemory, s.Kind())
	assert.NoError(t, s.Close())
}
