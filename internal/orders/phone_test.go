package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "5125550134", NormalizePhone("(512) 555-0134"))
	assert.Equal(t, "+15125550134", NormalizePhone("+1 512 555 0134"))
	assert.Equal(t, "5125550134", NormalizePhone("512.555.0134"))
	assert.Equal(t, "", NormalizePhone("ext"))
}
