// Copyright 2021 Clayton Craft <clayton@craftyguy.net>
// SPDX-License-Identifier: GPL-3.0-or-later

package ubx

// Checksum computes the 8-bit Fletcher checksum used by UBX frames. The input
// must be the class, id, length and payload bytes of a frame, without the sync
// bytes and without the trailing checksum.
func Checksum(data []byte) (ckA, ckB byte) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return
}
