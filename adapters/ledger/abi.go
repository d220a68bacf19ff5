package ledger

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// CertificationABI is the read surface of the certification contract plus
// the ERC-1271 signature check used for contract wallets.
const CertificationABI = `[
  {"type":"function","name":"balanceOf","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"},{"name":"id","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getMintTimestamp","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"holder","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getExpiryTimestamp","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"holder","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"isValid","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"holder","type":"address"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"isValidBatch","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"},{"name":"holders","type":"address[]"}],
   "outputs":[{"name":"","type":"bool[]"}]},
  {"type":"function","name":"getTotalCourses","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getCourse","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"tuple","components":[
     {"name":"courseCode","type":"string"},
     {"name":"courseName","type":"string"},
     {"name":"imageURI","type":"string"},
     {"name":"validityDuration","type":"uint256"},
     {"name":"exists","type":"bool"}]}]},
  {"type":"function","name":"isValidSignature","stateMutability":"view",
   "inputs":[{"name":"hash","type":"bytes32"},{"name":"signature","type":"bytes"}],
   "outputs":[{"name":"","type":"bytes4"}]}
]`

// ERC1271MagicValue is returned by isValidSignature for a valid signature
var ERC1271MagicValue = [4]byte{0x16, 0x26, 0xba, 0x7e}

// CourseTuple mirrors the getCourse return struct
type CourseTuple struct {
	CourseCode       string
	CourseName       string
	ImageURI         string
	ValidityDuration *big.Int
	Exists           bool
}

// ParsedABI returns the parsed certification ABI.
func ParsedABI() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(CertificationABI))
	if err != nil {
		panic(err)
	}
	return parsed
}
