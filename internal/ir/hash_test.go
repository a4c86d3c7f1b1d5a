package ir

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := IRObject{"x": IRInt(1), "y": IRString("z")}
	b := IRObject{"y": IRString("z"), "x": IRInt(1)}

	fa, err := Fingerprint(DomainPredicate, a)
	require.NoError(t, err)
	fb, err := Fingerprint(DomainPredicate, b)
	require.NoError(t, err)

	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)
}

func TestFingerprint_DomainSeparation(t *testing.T) {
	v := IRObject{"x": IRInt(1)}
	assert.NotEqual(t, MustFingerprint(DomainPredicate, v), MustFingerprint(DomainFetch, v))
}

func TestFingerprint_Error(t *testing.T) {
	_, err := Fingerprint(DomainRecord, IRFloat(math.NaN()))
	assert.ErrorContains(t, err, DomainRecord)
}

func TestRecordKey(t *testing.T) {
	withID := IRObject{"id": IRInt(7), "name": IRString("a")}
	sameID := IRObject{"id": IRInt(7), "name": IRString("changed")}
	assert.Equal(t, RecordKey(withID), RecordKey(sameID))

	noID := IRObject{"name": IRString("a")}
	noIDCopy := IRObject{"name": IRString("a")}
	assert.Equal(t, RecordKey(noID), RecordKey(noIDCopy))
	assert.NotEqual(t, RecordKey(noID), RecordKey(IRObject{"name": IRString("b")}))

	nullID := IRObject{"id": IRNull{}, "name": IRString("a")}
	assert.NotEqual(t, RecordKey(nullID), RecordKey(IRObject{"id": IRNull{}, "name": IRString("b")}))
}
