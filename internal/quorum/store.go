package quorum

import (
	"encoding/binary"
	"fmt"

	"QuorumGate/internal/ident"

	"github.com/ethereum/go-ethereum/common"
)

// Storage key prefixes for ledger records.
var (
	prefixSubmission  = []byte("s:") // s:<submissionID> -> submission record
	prefixDeploy      = []byte("d:") // d:<deployID>     -> deploy record
	prefixAsset       = []byte("w:") // w:<debridgeID>   -> wrapped asset record
	prefixDeployIndex = []byte("x:") // x:<debridgeID>   -> canonical deploy id
)

// submissionKey builds the storage key for a submission record.
func submissionKey(id ident.SubmissionID) []byte {
	return append(append([]byte{}, prefixSubmission...), id[:]...)
}

// deployKey builds the storage key for a deploy record.
func deployKey(id ident.DeployID) []byte {
	return append(append([]byte{}, prefixDeploy...), id[:]...)
}

// assetKey builds the storage key for a wrapped asset record.
func assetKey(id ident.DebridgeID) []byte {
	return append(append([]byte{}, prefixAsset...), id[:]...)
}

// deployIndexKey builds the storage key for the debridge-to-deploy binding.
func deployIndexKey(id ident.DebridgeID) []byte {
	return append(append([]byte{}, prefixDeployIndex...), id[:]...)
}

// encodeVotes serializes the voter/signature audit log.
// Format: [4B n] then per vote: [20B voter] [4B sigLen] [sig]
// Voters and signatures are stored pairwise in arrival order.
func encodeVotes(voters []common.Address, sigs [][]byte) []byte {
	size := 4
	for _, sig := range sigs {
		size += common.AddressLength + 4 + len(sig)
	}

	buf := make([]byte, 0, size)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(voters)))

	for i, voter := range voters {
		buf = append(buf, voter[:]...)
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(sigs[i])))
		buf = append(buf, sigs[i]...)
	}

	return buf
}

// decodeVotes deserializes the voter/signature audit log, returning the
// remaining bytes after the votes.
func decodeVotes(data []byte) ([]common.Address, [][]byte, []byte, error) {
	if len(data) < 4 {
		return nil, nil, nil, fmt.Errorf("vote log too short: %d < 4", len(data))
	}

	n := binary.BigEndian.Uint32(data[0:4])
	data = data[4:]

	voters := make([]common.Address, 0, n)
	sigs := make([][]byte, 0, n)

	for i := uint32(0); i < n; i++ {
		if len(data) < common.AddressLength+4 {
			return nil, nil, nil, fmt.Errorf("vote %d truncated", i)
		}

		var voter common.Address
		copy(voter[:], data[:common.AddressLength])
		data = data[common.AddressLength:]

		sigLen := binary.BigEndian.Uint32(data[0:4])
		data = data[4:]

		if len(data) < int(sigLen) {
			return nil, nil, nil, fmt.Errorf("vote %d signature truncated", i)
		}

		sig := make([]byte, sigLen)
		copy(sig, data[:sigLen])
		data = data[sigLen:]

		voters = append(voters, voter)
		sigs = append(sigs, sig)
	}

	return voters, sigs, data, nil
}

// encodeSubmission serializes a submission record.
// Format: [8B block] [1B crossed] [votes]
func encodeSubmission(info *SubmissionInfo, order []common.Address) []byte {
	buf := make([]byte, 9)
	binary.BigEndian.PutUint64(buf[0:8], info.Block)

	if info.Crossed {
		buf[8] = 1
	}

	return append(buf, encodeVotes(order, info.Signatures)...)
}

// decodeSubmission deserializes a submission record.
func decodeSubmission(id ident.SubmissionID, data []byte) (*SubmissionInfo, error) {
	if len(data) < 9 {
		return nil, fmt.Errorf("submission record too short: %d < 9", len(data))
	}

	info := &SubmissionInfo{
		ID:      id,
		Block:   binary.BigEndian.Uint64(data[0:8]),
		Crossed: data[8] == 1,
		voters:  make(map[common.Address]bool),
	}

	voters, sigs, _, err := decodeVotes(data[9:])
	if err != nil {
		return nil, err
	}

	for _, v := range voters {
		info.voters[v] = true
	}

	info.voterOrder = voters
	info.Signatures = sigs
	info.Confirmations = uint64(len(voters))

	return info, nil
}

// encodeDeploy serializes a deploy record.
// Format: [32B debridgeID] [20B token] [8B chainID] [1B decimals]
//         [1B approved] [4B nameLen] [name] [4B symLen] [symbol] [votes]
func encodeDeploy(info *DeployInfo, order []common.Address) []byte {
	buf := make([]byte, 0, 72+len(info.Name)+len(info.Symbol))

	buf = append(buf, info.DebridgeID[:]...)
	buf = append(buf, info.TokenAddress[:]...)
	buf = binary.BigEndian.AppendUint64(buf, info.ChainID)
	buf = append(buf, info.Decimals)

	if info.Approved {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}

	buf = binary.BigEndian.AppendUint32(buf, uint32(len(info.Name)))
	buf = append(buf, info.Name...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(info.Symbol)))
	buf = append(buf, info.Symbol...)

	return append(buf, encodeVotes(order, info.Signatures)...)
}

// decodeDeploy deserializes a deploy record.
func decodeDeploy(id ident.DeployID, data []byte) (*DeployInfo, error) {
	const fixed = 32 + common.AddressLength + 8 + 1 + 1

	if len(data) < fixed {
		return nil, fmt.Errorf("deploy record too short: %d < %d", len(data), fixed)
	}

	info := &DeployInfo{
		DeployID: id,
		voters:   make(map[common.Address]bool),
	}

	copy(info.DebridgeID[:], data[0:32])
	copy(info.TokenAddress[:], data[32:52])
	info.ChainID = binary.BigEndian.Uint64(data[52:60])
	info.Decimals = data[60]
	info.Approved = data[61] == 1
	data = data[62:]

	name, data, err := readString(data)
	if err != nil {
		return nil, fmt.Errorf("deploy name:\n%w", err)
	}
	info.Name = name

	symbol, data, err := readString(data)
	if err != nil {
		return nil, fmt.Errorf("deploy symbol:\n%w", err)
	}
	info.Symbol = symbol

	voters, sigs, _, err := decodeVotes(data)
	if err != nil {
		return nil, err
	}

	for _, v := range voters {
		info.voters[v] = true
	}

	info.voterOrder = voters
	info.Signatures = sigs
	info.Confirmations = uint64(len(voters))

	return info, nil
}

// readString reads a length-prefixed string, returning the remainder.
func readString(data []byte) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, fmt.Errorf("string length truncated")
	}

	n := binary.BigEndian.Uint32(data[0:4])
	data = data[4:]

	if len(data) < int(n) {
		return "", nil, fmt.Errorf("string truncated: need %d, have %d", n, len(data))
	}

	return string(data[:n]), data[n:], nil
}

// encodeAsset serializes a wrapped asset record.
// Format: [20B address] [8B native chain id]
func encodeAsset(a *WrappedAsset) []byte {
	buf := make([]byte, common.AddressLength+8)
	copy(buf, a.Address[:])
	binary.BigEndian.PutUint64(buf[common.AddressLength:], a.NativeChainID)

	return buf
}

// decodeAsset deserializes a wrapped asset record.
func decodeAsset(data []byte) (*WrappedAsset, error) {
	if len(data) != common.AddressLength+8 {
		return nil, fmt.Errorf("asset record length %d, want %d", len(data), common.AddressLength+8)
	}

	a := &WrappedAsset{}
	copy(a.Address[:], data[:common.AddressLength])
	a.NativeChainID = binary.BigEndian.Uint64(data[common.AddressLength:])

	return a, nil
}
