package peering

import (
	"encoding/binary"

	"github.com/minio/sha256-simd"

	"github.com/dep2p/go-autopeering/pkg/types"
)

// Distance 计算带 Salt 的邻居距离
//
//	distance = be_u32(local[0:4]) XOR be_u32(SHA-256(remote ‖ salt)[0:4])
//
// 结果不要求对称：入站使用本地私有 Salt，出站使用本地公开 Salt。
func Distance(localID, remoteID types.PeerID, salt []byte) uint32 {
	h := sha256.New()
	h.Write(remoteID[:])
	h.Write(salt)
	sum := h.Sum(nil)

	return binary.BigEndian.Uint32(localID[:4]) ^ binary.BigEndian.Uint32(sum[:4])
}
