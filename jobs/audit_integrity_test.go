package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIntegrityWindowDefaults(t *testing.T) {
	assert.Equal(t, defaultIntegrityWindowDays, integrityWindow(0))
	assert.Equal(t, defaultIntegrityWindowDays, integrityWindow(-5))
	assert.Equal(t, 7, integrityWindow(7))
}
