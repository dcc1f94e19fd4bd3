package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "receipts/u/a.jpg", []byte("bytes"), "image/jpeg"))

	got, err := s.Get(ctx, "receipts/u/a.jpg")
	require.NoError(t, err)
	assert.Equal(t, []byte("bytes"), got)

	require.NoError(t, s.Delete(ctx, "receipts/u/a.jpg"))
	got, err = s.Get(ctx, "receipts/u/a.jpg")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreMissingKeyIsNilNil(t *testing.T) {
	s := NewMemoryStore()
	got, err := s.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStoreCopiesData(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	data := []byte("original")
	require.NoError(t, s.Put(ctx, "k", data, ""))
	data[0] = 'X'

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), got)

	got[0] = 'Y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("original"), again)
}

func TestPutRejectsTraversalKeys(t *testing.T) {
	s := NewMemoryStore()

	err := s.Put(context.Background(), "receipts/../secrets", []byte("x"), "")
	var blobErr *BlobStorageError
	require.ErrorAs(t, err, &blobErr)
	assert.Equal(t, "put", blobErr.Op)

	err = s.Put(context.Background(), "", []byte("x"), "")
	require.Error(t, err)
}
