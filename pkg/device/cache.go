/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package device

import (
	"encoding/binary"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/gpspod/go-gpspod/pkg/log"
)

const bucketNamePrefix = "blocks_"

// BlockCache persists transferred filesystem blocks between runs, one
// bucket per device serial, keyed by block index.
type BlockCache struct {
	DB *bbolt.DB
}

func OpenBlockCache(path string) (*BlockCache, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}
	return &BlockCache{DB: db}, nil
}

func (c *BlockCache) Close() {
	c.DB.Close()
}

func bucketName(serial string) []byte {
	return []byte(fmt.Sprintf("%s%s", bucketNamePrefix, serial))
}

func indexKey(index int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(index))
	return b
}

// Get returns the cached block or nil.
func (c *BlockCache) Get(serial string, index int) []byte {
	var block []byte
	if err := c.DB.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName(serial))
		if b == nil {
			return nil
		}
		if value := b.Get(indexKey(index)); value != nil {
			block = append([]byte(nil), value...)
		}
		return nil
	}); err != nil {
		log.Warning("Block cache read failed: %v", err)
		return nil
	}
	return block
}

// Put stores one block.
func (c *BlockCache) Put(serial string, index int, block []byte) error {
	return c.DB.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName(serial))
		if err != nil {
			return err
		}
		return b.Put(indexKey(index), block)
	})
}

// Drop removes every cached block of one device.
func (c *BlockCache) Drop(serial string) error {
	return c.DB.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(bucketName(serial)) == nil {
			return nil
		}
		return tx.DeleteBucket(bucketName(serial))
	})
}
