package plugin

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatting(t *testing.T) {
	withMessage := &Error{PluginName: "p1", Operation: "load", Message: "bad manifest"}
	assert.Equal(t, "plugin p1: load: bad manifest", withMessage.Error())

	wrapped := NewError("p1", "load", errors.New("boom"))
	assert.Equal(t, "plugin p1: load: boom", wrapped.Error())
	assert.ErrorIs(t, wrapped, wrapped.Err)
}

func TestClientPluginMapRejectsUnknownKind(t *testing.T) {
	_, err := clientPluginMap(Kind("nonsense"))
	assert.ErrorIs(t, err, ErrUnsupportedKind)
}

func TestClientPluginMapCoversEveryKind(t *testing.T) {
	for _, kind := range []Kind{
		KindAgentDriver, KindSnapshotter, KindVerifier, KindFeedbackGenerator, KindResultPersister,
	} {
		pmap, err := clientPluginMap(kind)
		assert.NoError(t, err)
		assert.Contains(t, pmap, string(kind))
	}
}
