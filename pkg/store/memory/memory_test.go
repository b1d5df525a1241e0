package memory

import (
	"testing"

	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store"
	"github.com/kroniq-ai/KroniQ-AI-v2-sub000/pkg/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}
