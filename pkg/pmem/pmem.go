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

// Package pmem decodes the log storage kept in the pod's filesystem. A
// region holds a block header describing a doubly linked list of "PMEM"
// tagged sub-blocks, each sub-block a stream of length-prefixed entries.
// Track sub-blocks declare a periodic sample schema once and then mix
// schema-shaped periodic samples with episodic event records; the internal
// diagnostic log stores plain text lines.
//
// Pointers inside the headers are offsets into the PMEM file, which itself
// starts at a fixed offset of the filesystem, so all pointer arithmetic
// here rebases on FileOffset.
package pmem

import "fmt"

const (
	// FilesystemSize is the total size of the pod filesystem
	FilesystemSize = 0x3C0000
	// FileOffset is the position of the PMEM file in the filesystem,
	// header pointers are relative to it
	FileOffset = 0xBA00

	// TrackBlockOffset is the absolute position of the GPS track block
	TrackBlockOffset = 0xFFC40
	// DebugLogBlockOffset is the absolute position of the internal
	// diagnostic log block
	DebugLogBlockOffset = 0x9E1C0
	// SettingsOffset is the absolute position of the log settings blob
	SettingsOffset = 0xDA00
)

// Image is a byte addressable view of the pod filesystem, either a flat
// dump or a live device fetching blocks on demand.
type Image interface {
	Slice(offset, length int) ([]byte, error)
}

// FileImage serves slices from a flat filesystem dump.
type FileImage []byte

func (f FileImage) Slice(offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(f) {
		return nil, ErrOutOfRange{Offset: offset, Length: length}
	}
	return f[offset : offset+length], nil
}

type ErrOutOfRange struct {
	Offset int
	Length int
}

func (e ErrOutOfRange) Error() string {
	return fmt.Sprintf("slice 0x%X+%d outside the memory image", e.Offset, e.Length)
}

// ErrNoMetadata marks a track whose header entries are absent or damaged,
// the track is skipped.
type ErrNoMetadata struct{}

func (ErrNoMetadata) Error() string {
	return "track has no metadata entry"
}

// ErrNoRecovery is the clean negative result of RecoverTrack.
type ErrNoRecovery struct{}

func (ErrNoRecovery) Error() string {
	return "no plausible log data found after the last track"
}
