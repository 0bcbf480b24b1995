package mission

import (
	"math"
	"testing"
)

func le32(v uint32) []byte { return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)} }
func lef32(v float32) []byte { return le32(math.Float32bits(v)) }

// buildFooter assembles a well-formed footer envelope:
// len32 mapPath zero_pad title_len title "MtPr" version
func buildFooter(mapPath, title string, version uint32) []byte {
	var out []byte
	out = append(out, le32(uint32(len(mapPath)))...)
	out = append(out, []byte(mapPath)...)
	out = append(out, le32(0)...) // zero pad
	out = append(out, le32(uint32(len(title)))...)
	out = append(out, []byte(title)...)
	out = append(out, []byte(footerMagic)...)
	out = append(out, le32(version)...)
	return out
}

// buildObjectRecord assembles a well-formed object record:
// group_id flags name_len name logical_id clan_id pos orient scale alias_len
func buildObjectRecord(name string) []byte {
	var out []byte
	out = append(out, le32(0xAAAA)...)               // group_id
	out = append(out, le32(objectRecordFlags)...)     // flags
	out = append(out, le32(uint32(len(name)))...)     // name_len
	out = append(out, []byte(name)...)                // name
	out = append(out, le32(1)...)                     // logical_id
	out = append(out, le32(2)...)                     // clan_id
	out = append(out, lef32(1)...)
	out = append(out, lef32(2)...)
	out = append(out, lef32(3)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(1)...)
	out = append(out, lef32(1)...)
	out = append(out, lef32(1)...)
	out = append(out, le32(0)...) // alias_len = 0, no alias
	return out
}

func TestParseFooterAndObject(t *testing.T) {
	footer := buildFooter(`DATA\MAPS\Tut_1\land`, "Tutorial 1", 1)
	object := buildObjectRecord("s_tree_04")

	var data []byte
	data = append(data, object...)
	data = append(data, footer...)
	// pad so object record's trailing-bytes requirement (48 bytes after name) is satisfied
	data = append(data, make([]byte, 64)...)

	file, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if file.Footer.Version != 1 {
		t.Fatalf("Version = %d, want 1", file.Footer.Version)
	}
	if file.Footer.MapPath != `DATA\MAPS\Tut_1\land` {
		t.Fatalf("MapPath = %q", file.Footer.MapPath)
	}
	if file.Footer.Title != "Tutorial 1" {
		t.Fatalf("Title = %q", file.Footer.Title)
	}

	found := false
	for _, obj := range file.Objects {
		if obj.ResourceName == "s_tree_04" {
			found = true
			if obj.Position != [3]float32{1, 2, 3} {
				t.Fatalf("Position = %v", obj.Position)
			}
		}
	}
	if !found {
		t.Fatalf("expected object s_tree_04 to be parsed, got %+v", file.Objects)
	}
}

func TestParseRejectsMissingFooter(t *testing.T) {
	if _, err := Parse(make([]byte, 32)); err == nil {
		t.Fatalf("expected error for missing footer")
	}
}

func TestParseObjectRejectsNonFiniteScale(t *testing.T) {
	name := "broken_unit"
	var out []byte
	out = append(out, le32(0)...)
	out = append(out, le32(objectRecordFlags)...)
	out = append(out, le32(uint32(len(name)))...)
	out = append(out, []byte(name)...)
	out = append(out, le32(0)...)
	out = append(out, le32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	out = append(out, lef32(0)...)
	nanBits := uint32(0x7fc00000)
	out = append(out, le32(nanBits)...) // NaN scale.x
	out = append(out, lef32(1)...)
	out = append(out, lef32(1)...)
	out = append(out, le32(0)...)
	out = append(out, make([]byte, 32)...) // padding

	objects := parseObjects(out)
	for _, obj := range objects {
		if obj.ResourceName == "broken_unit" {
			t.Fatalf("expected record with NaN scale to be rejected")
		}
	}
}
