// Package mission parses Parkan mission (.tma) files: a tail footer
// naming the map and a scatter of fixed-shape object records found by
// scanning for their constant flags word.
package mission

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/ernie/parkan-core/internal/cp1251"
)

const (
	objectRecordFlags uint32 = 0x8000_0002
	footerMagic              = "MtPr"
	mapPathToken             = `DATA\MAPS\`
)

// Footer names the map a mission loads and the mission's declared
// format version.
type Footer struct {
	MapPath string
	Title   string
	Version uint32
}

// Object is one placed instance in a mission: a reference to a model
// or unit resource, a transform, and identifiers used by mission
// scripting.
type Object struct {
	Offset       int
	GroupID      uint32
	Flags        uint32
	ResourceName string
	LogicalID    int32
	ClanID       int32
	Position     [3]float32
	Orientation  [3]float32
	Scale        [3]float32
	Alias        string
}

// File is a fully parsed mission.
type File struct {
	Footer  Footer
	Objects []Object
}

// Parse decodes a mission file's footer and every recognizable object
// record it contains.
func Parse(data []byte) (*File, error) {
	footer, err := parseFooter(data)
	if err != nil {
		return nil, err
	}
	return &File{Footer: footer, Objects: parseObjects(data)}, nil
}

func parseFooter(data []byte) (Footer, error) {
	positions := findAllMapPathPositions(data)
	if len(positions) == 0 {
		return Footer{}, fmt.Errorf("mission: map path token %q not found", mapPathToken)
	}

	for i := len(positions) - 1; i >= 0; i-- {
		mapStart := positions[i]
		if mapStart < 4 {
			continue
		}

		mapEnd := scanPathEnd(data, mapStart)
		if mapEnd <= mapStart {
			continue
		}
		mapLen := mapEnd - mapStart
		declaredLen, ok := readU32(data, mapStart-4)
		if !ok || int(declaredLen) != mapLen {
			continue
		}

		zeroPad, ok := readU32(data, mapEnd)
		if !ok || zeroPad != 0 {
			continue
		}

		titleLenOff := mapEnd + 4
		titleLenU, ok := readU32(data, titleLenOff)
		if !ok {
			continue
		}
		titleLen := int(titleLenU)
		if titleLen == 0 || titleLen > 256 {
			continue
		}
		titleStart := titleLenOff + 4
		titleEnd := titleStart + titleLen
		if titleEnd > len(data) {
			continue
		}

		mapPath, err := cp1251.Decode(data[mapStart:mapEnd])
		if err != nil || !strings.Contains(strings.ToUpper(mapPath), mapPathToken) {
			continue
		}
		title := decodeTitle(data[titleStart:titleEnd])
		version, err := parseFooterVersion(data, titleEnd)
		if err != nil {
			continue
		}

		return Footer{MapPath: mapPath, Title: title, Version: version}, nil
	}

	return parseFooterFallback(data)
}

func parseFooterFallback(data []byte) (Footer, error) {
	mapStart, ok := lastIndex(data, []byte(mapPathToken))
	if !ok {
		return Footer{}, fmt.Errorf("mission: failed to decode map/title envelope")
	}
	mapEnd := scanPathEnd(data, mapStart)
	if mapEnd <= mapStart {
		return Footer{}, fmt.Errorf("mission: failed to decode map/title envelope")
	}
	mapPath, err := cp1251.Decode(data[mapStart:mapEnd])
	if err != nil || !strings.Contains(strings.ToUpper(mapPath), mapPathToken) {
		return Footer{}, fmt.Errorf("mission: failed to decode map/title envelope")
	}

	title := ""
	if titleLenU, ok := readU32(data, mapEnd+8); ok {
		titleLen := int(titleLenU)
		titleStart := mapEnd + 12
		titleEnd := titleStart + titleLen
		if titleLen > 0 && titleLen <= 256 && titleEnd <= len(data) {
			raw := data[titleStart:titleEnd]
			if allPrintableASCII(raw) {
				title = decodeTitle(raw)
			}
		}
	}

	var version uint32 = 1
	if magicOff, ok := lastIndex(data, []byte(footerMagic)); ok {
		if v, ok := readU32(data, magicOff+4); ok {
			version = v
		}
	} else if v, ok := readU32(data, mapEnd); ok {
		version = v
	}

	return Footer{MapPath: mapPath, Title: title, Version: version}, nil
}

func parseFooterVersion(data []byte, afterTitleOff int) (uint32, error) {
	if afterTitleOff+8 <= len(data) && string(data[afterTitleOff:afterTitleOff+4]) == footerMagic {
		v, ok := readU32(data, afterTitleOff+4)
		if !ok {
			return 0, fmt.Errorf("mission: missing version after %s", footerMagic)
		}
		return v, nil
	}
	v, ok := readU32(data, afterTitleOff)
	if !ok {
		return 0, fmt.Errorf("mission: missing version after title")
	}
	return v, nil
}

func findAllMapPathPositions(data []byte) []int {
	var positions []int
	token := []byte(mapPathToken)
	for i := 0; i+len(token) <= len(data); i++ {
		if string(data[i:i+len(token)]) == string(token) {
			positions = append(positions, i)
		}
	}
	return positions
}

func lastIndex(data, token []byte) (int, bool) {
	for i := len(data) - len(token); i >= 0; i-- {
		if string(data[i:i+len(token)]) == string(token) {
			return i, true
		}
	}
	return 0, false
}

func scanPathEnd(data []byte, start int) int {
	off := start
	for off < len(data) && isPathByte(data[off]) {
		off++
	}
	return off
}

func isPathByte(b byte) bool {
	if isAlnum(b) {
		return true
	}
	switch b {
	case '_', '.', '/', '\\', '-', ' ', ':':
		return true
	}
	return false
}

func parseObjects(data []byte) []Object {
	var objects []Object
	const minRecordTail = 48

	limit := len(data) - 16
	for offset := 0; offset < limit; offset++ {
		flags, ok := readU32(data, offset+4)
		if !ok || flags != objectRecordFlags {
			continue
		}

		nameLenU, ok := readU32(data, offset+8)
		if !ok {
			continue
		}
		nameLen := int(nameLenU)
		if nameLen < 3 || nameLen > 260 {
			continue
		}

		nameStart := offset + 12
		nameEnd := nameStart + nameLen
		if nameEnd+minRecordTail > len(data) {
			continue
		}

		nameRaw := data[nameStart:nameEnd]
		if !isObjectNameBytes(nameRaw) {
			continue
		}

		resourceName, err := cp1251.Decode(nameRaw)
		if err != nil || !looksLikeObjectName(resourceName) {
			continue
		}

		groupID, ok := readU32(data, offset)
		if !ok {
			continue
		}
		logicalID, ok := readI32(data, nameEnd)
		if !ok {
			continue
		}
		clanID, ok := readI32(data, nameEnd+4)
		if !ok {
			continue
		}
		position, ok := readVec3(data, nameEnd+8)
		if !ok {
			continue
		}
		orientation, ok := readVec3(data, nameEnd+20)
		if !ok {
			continue
		}
		scale, ok := readVec3(data, nameEnd+32)
		if !ok {
			continue
		}
		if !allFinite(position) || !allFinite(orientation) || !allFinite(scale) {
			continue
		}

		alias := parseAlias(data, nameEnd+44)

		objects = append(objects, Object{
			Offset:       offset,
			GroupID:      groupID,
			Flags:        flags,
			ResourceName: resourceName,
			LogicalID:    logicalID,
			ClanID:       clanID,
			Position:     position,
			Orientation:  orientation,
			Scale:        scale,
			Alias:        alias,
		})
	}

	sort.Slice(objects, func(i, j int) bool { return objects[i].Offset < objects[j].Offset })
	return dedupByOffset(objects)
}

func dedupByOffset(objects []Object) []Object {
	if len(objects) == 0 {
		return objects
	}
	out := objects[:1]
	for _, obj := range objects[1:] {
		if obj.Offset != out[len(out)-1].Offset {
			out = append(out, obj)
		}
	}
	return out
}

func parseAlias(data []byte, aliasLenOff int) string {
	aliasLenU, ok := readU32(data, aliasLenOff)
	if !ok {
		return ""
	}
	aliasLen := int(aliasLenU)
	if aliasLen == 0 || aliasLen > 96 {
		return ""
	}
	aliasStart := aliasLenOff + 4
	aliasEnd := aliasStart + aliasLen
	if aliasEnd > len(data) {
		return ""
	}
	aliasRaw := data[aliasStart:aliasEnd]
	for _, b := range aliasRaw {
		if b != '_' && b != '-' && b != '.' && !isAlnum(b) {
			return ""
		}
	}
	alias, err := cp1251.Decode(aliasRaw)
	if err != nil {
		return ""
	}
	return alias
}

func looksLikeObjectName(name string) bool {
	if strings.HasSuffix(strings.ToLower(name), ".dat") {
		return true
	}
	return strings.Contains(name, "_")
}

func isObjectNameBytes(b []byte) bool {
	for _, c := range b {
		if !isAlnum(c) {
			switch c {
			case '_', '.', '/', '\\', '-':
			default:
				return false
			}
		}
	}
	return true
}

func isAlnum(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

func allPrintableASCII(b []byte) bool {
	for _, c := range b {
		if c == ' ' {
			continue
		}
		if c < '!' || c > '~' {
			return false
		}
	}
	return true
}

func allFinite(v [3]float32) bool {
	for _, c := range v {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return false
		}
	}
	return true
}

func decodeTitle(b []byte) string {
	end := 0
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] != 0 && b[i] != 0xCD {
			end = i + 1
			break
		}
	}
	s, err := cp1251.Decode(b[:end])
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func readU32(data []byte, offset int) (uint32, bool) {
	if offset < 0 || offset+4 > len(data) {
		return 0, false
	}
	return binary.LittleEndian.Uint32(data[offset : offset+4]), true
}

func readI32(data []byte, offset int) (int32, bool) {
	v, ok := readU32(data, offset)
	return int32(v), ok
}

func readF32(data []byte, offset int) (float32, bool) {
	v, ok := readU32(data, offset)
	if !ok {
		return 0, false
	}
	return math.Float32frombits(v), true
}

func readVec3(data []byte, offset int) ([3]float32, bool) {
	x, ok := readF32(data, offset)
	if !ok {
		return [3]float32{}, false
	}
	y, ok := readF32(data, offset+4)
	if !ok {
		return [3]float32{}, false
	}
	z, ok := readF32(data, offset+8)
	if !ok {
		return [3]float32{}, false
	}
	return [3]float32{x, y, z}, true
}
