package cryptoprim

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMerkleRootEmpty(t *testing.T) {
	require.Equal(t, Hash{}, MerkleRoot(nil))
}

func TestMerkleRootSingle(t *testing.T) {
	leaf := SHA256([]byte("tx-1"))
	require.Equal(t, leaf, MerkleRoot([]Hash{leaf}))
}

func TestMerkleRootOddDuplicatesLast(t *testing.T) {
	a := SHA256([]byte("a"))
	b := SHA256([]byte("b"))
	c := SHA256([]byte("c"))

	got := MerkleRoot([]Hash{a, b, c})

	ab := SHA256(append(append([]byte{}, a[:]...), b[:]...))
	cc := SHA256(append(append([]byte{}, c[:]...), c[:]...))
	want := SHA256(append(append([]byte{}, ab[:]...), cc[:]...))

	require.Equal(t, want, got)
}

func TestVRFRoundTrip(t *testing.T) {
	pk, sk, err := GenerateKey()
	require.NoError(t, err)

	input := VRFInput(Hash{}, 1, 1)
	output, proof, err := VRFEvaluate(sk, input)
	require.NoError(t, err)

	require.True(t, VRFVerify(pk, input, output, proof))
}

func TestVRFVerifyRejectsTamperedOutput(t *testing.T) {
	pk, sk, err := GenerateKey()
	require.NoError(t, err)

	input := VRFInput(Hash{}, 1, 1)
	output, proof, err := VRFEvaluate(sk, input)
	require.NoError(t, err)

	output[0] ^= 0xFF
	require.False(t, VRFVerify(pk, input, output, proof))
}

func TestVRFVerifyRejectsWrongKey(t *testing.T) {
	_, sk, err := GenerateKey()
	require.NoError(t, err)
	otherPK, _, err := GenerateKey()
	require.NoError(t, err)

	input := VRFInput(Hash{}, 1, 1)
	output, proof, err := VRFEvaluate(sk, input)
	require.NoError(t, err)

	require.False(t, VRFVerify(otherPK, input, output, proof))
}

func TestSignVerifyRoundTrip(t *testing.T) {
	pk, sk, err := GenerateKey()
	require.NoError(t, err)

	sig, err := Sign(sk, []byte("hello"))
	require.NoError(t, err)
	require.True(t, Verify(pk, []byte("hello"), sig))
	require.False(t, Verify(pk, []byte("goodbye"), sig))
}

func TestPubKeyTextRoundTrip(t *testing.T) {
	pk, _, err := GenerateKey()
	require.NoError(t, err)

	text, err := pk.MarshalText()
	require.NoError(t, err)

	var decoded PubKey
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, pk, decoded)
}

func TestHashTextRoundTrip(t *testing.T) {
	h := SHA256([]byte("payload"))

	text, err := h.MarshalText()
	require.NoError(t, err)

	var decoded Hash
	require.NoError(t, decoded.UnmarshalText(text))
	require.Equal(t, h, decoded)
}
