package fec

import (
	"os"
	"testing"

	"github.com/journeymidnight/blockfec/utils"
	"github.com/stretchr/testify/require"
)

func testStorageReadWrite(t *testing.T, storage chunkStorage) {
	chunks := make([][]byte, 5)
	for i := range chunks {
		chunks[i] = make([]byte, ChunkSize)
		utils.SetRandStringBytes(chunks[i])
	}
	//write out of order
	for _, slot := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, storage.writeChunk(slot, chunks[slot]))
	}
	buf := make([]byte, ChunkSize)
	for slot := range chunks {
		require.NoError(t, storage.readChunk(slot, buf))
		require.Equal(t, chunks[slot], buf)
	}
}

func TestMemStorage(t *testing.T) {
	storage := &memStorage{}
	testStorageReadWrite(t, storage)

	require.Error(t, storage.readChunk(100, make([]byte, ChunkSize)))
	require.NoError(t, storage.close(true))
}

func TestFileStorage(t *testing.T) {
	storage, err := newFileStorage()
	require.NoError(t, err)
	testStorageReadWrite(t, storage)

	name := storage.file.Name()
	_, err = os.Stat(name)
	require.NoError(t, err)

	require.NoError(t, storage.close(true))
	_, err = os.Stat(name)
	require.True(t, os.IsNotExist(err))
}

func TestFileStorageKeepFile(t *testing.T) {
	storage, err := newFileStorage()
	require.NoError(t, err)
	name := storage.file.Name()

	require.NoError(t, storage.close(false))
	_, err = os.Stat(name)
	require.NoError(t, err)
	require.NoError(t, os.Remove(name))
}

func TestStorageBackendSelection(t *testing.T) {
	small, err := newChunkStorage(2)
	require.NoError(t, err)
	_, ok := small.(*memStorage)
	require.True(t, ok)
	require.NoError(t, small.close(true))

	big, err := newChunkStorage(fileBackedThreshold/ChunkSize + 1)
	require.NoError(t, err)
	_, ok = big.(*fileStorage)
	require.True(t, ok)
	require.NoError(t, big.close(true))
}
