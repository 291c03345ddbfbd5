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

package layers

// CRC-16/CCITT-FALSE as used by the pod firmware for both the packet header
// checksum and the trailing payload checksum. Poly 0x1021, init 0xFFFF,
// no reflection, no final xor. The payload checksum is seeded with the
// header checksum instead of the init value, so the seed is explicit here.

const (
	crcPoly = 0x1021
	// CrcInit is the seed for a fresh checksum
	CrcInit = 0xFFFF
)

var crcTable [256]uint16

func init() {
	for i := 0; i < 256; i++ {
		crc := uint16(i) << 8
		for bit := 0; bit < 8; bit++ {
			if crc&0x8000 != 0 {
				crc = crc<<1 ^ crcPoly
			} else {
				crc <<= 1
			}
		}
		crcTable[i] = crc
	}
}

// Checksum16 continues a CRC-16/CCITT-FALSE checksum over data. Pass CrcInit
// as seed for a fresh checksum.
func Checksum16(seed uint16, data []byte) uint16 {
	crc := seed
	for _, b := range data {
		crc = crc<<8 ^ crcTable[byte(crc>>8)^b]
	}
	return crc
}
