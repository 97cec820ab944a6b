package library

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSha256Sum(t *testing.T) {
	require.Equal(t, "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08", Sha256Sum("test"))
	//string and []byte inputs hash identically
	require.Equal(t, Sha256Sum("abc"), Sha256Sum([]byte("abc")))
	require.Len(t, Sha256Sum(""), 64)
}
