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

package pmem

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/gpspod/go-gpspod/pkg/log"
)

const (
	// BlockHeaderSize is the size of the region block header
	BlockHeaderSize = 18
	// SubBlockHeaderSize is the size of one linked list node header
	SubBlockHeaderSize = 12
)

var subBlockMagic = [4]byte{'P', 'M', 'E', 'M'}

// BlockHeader describes the linked list of sub-blocks in a region. The
// pointer fields are file offsets.
type BlockHeader struct {
	Last    uint32
	First   uint32
	Entries uint32
	Free    uint32
	Pad     uint16
}

func (h BlockHeader) String() string {
	return fmt.Sprintf("first 0x%06X, last 0x%06X, entries %d, free 0x%06X",
		h.First, h.Last, h.Entries, h.Free)
}

// SubBlockHeader is one node of the list. A node whose next pointer
// references itself is the end of the list.
type SubBlockHeader struct {
	Magic [4]byte
	Next  uint32
	Prev  uint32
}

// SubBlock is a located list node; Offset is the file offset of its
// header, the entry stream follows the header.
type SubBlock struct {
	Offset int
	Header SubBlockHeader
}

// DataOffset is the absolute position of the sub-block's first entry.
func (s SubBlock) DataOffset() int {
	return FileOffset + s.Offset + SubBlockHeaderSize
}

// Block is one log region. Loading goes header first, then the sub-block
// list.
type Block struct {
	img    Image
	Offset int
	Header BlockHeader
	Subs   []SubBlock
}

func NewBlock(img Image, offset int) *Block {
	return &Block{img: img, Offset: offset}
}

func (b *Block) LoadHeader() error {
	data, err := b.img.Slice(b.Offset, BlockHeaderSize)
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, &b.Header)
}

// LoadSubBlocks walks the linked list from the first pointer. The walk
// stops after Entries nodes, on a self-referential next pointer, or on a
// node seen before. Damaged lists terminate rather than loop.
func (b *Block) LoadSubBlocks() error {
	b.Subs = b.Subs[:0]
	visited := map[uint32]bool{}
	pos := b.Header.First
	for uint32(len(b.Subs)) < b.Header.Entries {
		if visited[pos] {
			log.Warning("Sub-block list revisits 0x%06X, stopping", pos)
			return nil
		}
		visited[pos] = true

		data, err := b.img.Slice(FileOffset+int(pos), SubBlockHeaderSize)
		if err != nil {
			return err
		}
		var h SubBlockHeader
		if err := binary.Read(bytes.NewReader(data), binary.LittleEndian, &h); err != nil {
			return err
		}
		if h.Magic != subBlockMagic {
			return fmt.Errorf("sub-block at 0x%06X has no PMEM tag", pos)
		}
		b.Subs = append(b.Subs, SubBlock{Offset: int(pos), Header: h})

		if h.Next == pos {
			return nil
		}
		pos = h.Next
	}
	return nil
}

// entryReader pulls length-prefixed entries from an absolute cursor.
type entryReader struct {
	img Image
	pos int
}

// pull reads the next entry. A zero length prefix yields an empty entry,
// the caller decides whether that terminates its stream.
func (r *entryReader) pull() ([]byte, error) {
	head, err := r.img.Slice(r.pos, 2)
	if err != nil {
		return nil, err
	}
	n := int(binary.LittleEndian.Uint16(head))
	data, err := r.img.Slice(r.pos+2, n)
	if err != nil {
		return nil, err
	}
	r.pos += 2 + n
	return data, nil
}
