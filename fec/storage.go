/*
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless  by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package fec

import (
	"io/ioutil"
	"os"

	"github.com/pkg/errors"
)

// chunkStorage holds fixed size chunk records addressed by slot index.
// Sessions only ever go through this interface and never learn which
// backend is active.
type chunkStorage interface {
	writeChunk(slot int, payload []byte) error
	readChunk(slot int, dst []byte) error
	// remove also deletes any backing file
	close(remove bool) error
}

// newChunkStorage picks the backend from the total chunk footprint of
// the session.
func newChunkStorage(chunkCount int) (chunkStorage, error) {
	if chunkCount*ChunkSize > fileBackedThreshold {
		return newFileStorage()
	}
	return &memStorage{}, nil
}

type memStorage struct {
	chunks [][]byte
}

func (m *memStorage) writeChunk(slot int, payload []byte) error {
	for len(m.chunks) <= slot {
		m.chunks = append(m.chunks, nil)
	}
	buf := make([]byte, ChunkSize)
	copy(buf, payload)
	m.chunks[slot] = buf
	return nil
}

func (m *memStorage) readChunk(slot int, dst []byte) error {
	if slot < 0 || slot >= len(m.chunks) || m.chunks[slot] == nil {
		return errors.Errorf("fec: no chunk at slot %d", slot)
	}
	copy(dst[:ChunkSize], m.chunks[slot])
	return nil
}

func (m *memStorage) close(remove bool) error {
	m.chunks = nil
	return nil
}

// fileStorage keeps chunks in a session owned temp file, one bare
// ChunkSize record per slot. The layout is private to the session, the
// file never outlives it.
type fileStorage struct {
	file *os.File
}

func newFileStorage() (*fileStorage, error) {
	f, err := ioutil.TempFile("", "fec-chunks-*.tmp")
	if err != nil {
		return nil, errors.Wrap(err, "fec: create chunk storage")
	}
	return &fileStorage{file: f}, nil
}

func (f *fileStorage) writeChunk(slot int, payload []byte) error {
	if _, err := f.file.WriteAt(payload[:ChunkSize], int64(slot)*ChunkSize); err != nil {
		return errors.Wrapf(err, "fec: write chunk slot %d", slot)
	}
	return nil
}

func (f *fileStorage) readChunk(slot int, dst []byte) error {
	if _, err := f.file.ReadAt(dst[:ChunkSize], int64(slot)*ChunkSize); err != nil {
		return errors.Wrapf(err, "fec: read chunk slot %d", slot)
	}
	return nil
}

func (f *fileStorage) close(remove bool) error {
	name := f.file.Name()
	err := f.file.Close()
	if remove {
		if rmErr := os.Remove(name); rmErr != nil && err == nil {
			err = rmErr
		}
	}
	return errors.Wrap(err, "fec: close chunk storage")
}
