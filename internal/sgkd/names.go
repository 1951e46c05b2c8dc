package sgkd

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dct-go/sgkd/internal/certstore"
	"github.com/dct-go/sgkd/internal/synccoll"
)

// ErrNameParse is returned by the name parsers below for any publication
// name that doesn't match the expected schema (spec §6).
var ErrNameParse = errors.New("sgkd: publication name parse failure")

func krPrefix(prefix string) synccoll.Name   { return synccoll.Name(prefix + "/kr/") }
func mrPrefix(prefix string) synccoll.Name   { return synccoll.Name(prefix + "/mr/") }
func candPrefix(prefix string) synccoll.Name { return synccoll.Name(prefix + "/km/cand/") }

// krName builds a KR publication name:
// /{prefix}/kr/{epoch}/{TPlow4}/{TPhigh4}/{timestamp}.
func krName(prefix string, epoch Epoch, tpLo, tpHi certstore.ThumbPrint, ts uint64) synccoll.Name {
	return synccoll.Name(fmt.Sprintf("%s/kr/%d/%s/%s/%d",
		prefix, epoch, hex.EncodeToString(tpLo[:4]), hex.EncodeToString(tpHi[:4]), ts))
}

// mrName builds an MR publication name: /{prefix}/mr/{timestamp}.
func mrName(prefix string, ts uint64) synccoll.Name {
	return synccoll.Name(fmt.Sprintf("%s/mr/%d", prefix, ts))
}

// candName builds an election candidacy name:
// /{prefix}/km/cand/{priority}/{tp}/{ts}.
func candName(prefix string, priority int, tp certstore.ThumbPrint, ts uint64) synccoll.Name {
	return synccoll.Name(fmt.Sprintf("%s/km/cand/%d/%s/%d", prefix, priority, hex.EncodeToString(tp[:]), ts))
}

// krNameFields is the parsed form of a KR name.
type krNameFields struct {
	Epoch      Epoch
	TPLo, TPHi [4]byte
	TS         uint64
}

func parseKRName(prefix string, name synccoll.Name) (krNameFields, error) {
	var f krNameFields
	withPrefix := prefix + "/kr/"
	s := string(name)
	if !strings.HasPrefix(s, withPrefix) {
		return f, ErrNameParse
	}
	parts := strings.Split(strings.TrimPrefix(s, withPrefix), "/")
	if len(parts) != 4 {
		return f, ErrNameParse
	}
	epoch, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return f, ErrNameParse
	}
	lo, err := hex.DecodeString(parts[1])
	if err != nil || len(lo) != 4 {
		return f, ErrNameParse
	}
	hi, err := hex.DecodeString(parts[2])
	if err != nil || len(hi) != 4 {
		return f, ErrNameParse
	}
	ts, err := strconv.ParseUint(parts[3], 10, 64)
	if err != nil {
		return f, ErrNameParse
	}
	f.Epoch = Epoch(epoch)
	copy(f.TPLo[:], lo)
	copy(f.TPHi[:], hi)
	f.TS = ts
	return f, nil
}

func parseCandName(prefix string, name synccoll.Name) (priority int, tp certstore.ThumbPrint, ts uint64, err error) {
	withPrefix := prefix + "/km/cand/"
	s := string(name)
	if !strings.HasPrefix(s, withPrefix) {
		return 0, tp, 0, ErrNameParse
	}
	parts := strings.Split(strings.TrimPrefix(s, withPrefix), "/")
	if len(parts) != 3 {
		return 0, tp, 0, ErrNameParse
	}
	p, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, tp, 0, ErrNameParse
	}
	raw, err := hex.DecodeString(parts[1])
	if err != nil || len(raw) != 32 {
		return 0, tp, 0, ErrNameParse
	}
	copy(tp[:], raw)
	ts, err = strconv.ParseUint(parts[2], 10, 64)
	if err != nil {
		return 0, tp, 0, ErrNameParse
	}
	return p, tp, ts, nil
}
