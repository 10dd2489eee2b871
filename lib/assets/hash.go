// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package assets

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Digest is a 32-byte BLAKE3 digest of an asset's uncompressed bytes.
type Digest [32]byte

// assetDomainKey is the BLAKE3 key for asset digests: the ASCII domain
// name, zero-padded to 32 bytes. Changing it invalidates every stored
// asset.
var assetDomainKey = [32]byte{
	'd', 'a', 'w', 's', 'y', 'n', 'c', '.', 'a', 's', 's', 'e', 't',
}

// Sum returns the asset digest of data.
func Sum(data []byte) Digest {
	hasher, err := blake3.NewKeyed(assetDomainKey[:])
	if err != nil {
		// NewKeyed only fails for keys that are not 32 bytes.
		panic("assets: blake3 keyed hasher: " + err.Error())
	}
	hasher.Write(data)
	var digest Digest
	hasher.Sum(digest[:0])
	return digest
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }
