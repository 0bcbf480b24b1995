// Package scene composes a parsed mission, its terrain, and its
// object instances into a renderable scene: resolving each mission
// object to a model prototype, deduplicating instances by prototype,
// and building render-ready meshes and textures.
package scene

import (
	"encoding/binary"
	"fmt"
	"image"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/ernie/parkan-core/internal/cp1251"
	"github.com/ernie/parkan-core/mesh"
	"github.com/ernie/parkan-core/mission"
	"github.com/ernie/parkan-core/nres"
	"github.com/ernie/parkan-core/splash"
	"github.com/ernie/parkan-core/terrain"
	"github.com/ernie/parkan-core/texture"
	"github.com/ernie/parkan-core/unit"
)

const (
	mat0Kind              = 0x3054_414D
	meshKind              = 0x4853_454D
	objectRefStride       = 64
	objectRefArchiveBytes = 32
)

// LoadOptions toggles optional, slower parts of scene loading.
type LoadOptions struct {
	LoadModelTextures  bool
	LoadTerrainTexture bool
}

// DefaultLoadOptions resolves both model and terrain textures.
func DefaultLoadOptions() LoadOptions {
	return LoadOptions{LoadModelTextures: true, LoadTerrainTexture: true}
}

// LoadedTexture is a texture decoded to RGBA8, already detached from
// its source archive's payload bytes.
type LoadedTexture struct {
	Name   string
	Width  uint32
	Height uint32
	RGBA8  []byte
}

// ModelInstance places one copy of a model prototype in the scene.
type ModelInstance struct {
	Position [3]float32
	YawRad   float32
	Scale    [3]float32
}

// SceneModel is one unique (archive, model name) prototype, its
// render mesh, an optional resolved texture, and every instance that
// shares it.
type SceneModel struct {
	ArchivePath string
	ModelName   string
	Mesh        *mesh.RenderMesh
	Texture     *LoadedTexture
	Instances   []ModelInstance
}

// MissionScene is a fully composed, renderable mission.
type MissionScene struct {
	GameRoot       string
	MissionPath    string
	Mission        *mission.File
	MapFolderRel   string
	LandMshPath    string
	Terrain        *terrain.Mesh
	TerrainTexture *LoadedTexture
	Models         []SceneModel
	SkippedObjects int
}

type objectPrototype struct {
	archivePath string
	modelName   string
}

type objectRef struct {
	archiveName  string
	resourceName string
}

type modelKey struct {
	archivePath string
	modelName   string
}

// DetectGameRoot walks upward from a mission file's directory looking
// for the game root marker: a DATA directory alongside an
// objects.rlb file.
func DetectGameRoot(missionPath string) (string, bool) {
	dir := filepath.Dir(missionPath)
	for {
		if isDir(filepath.Join(dir, "DATA")) && isFile(filepath.Join(dir, "objects.rlb")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// LoadScene loads a mission scene with both model and terrain
// textures resolved.
func LoadScene(gameRoot, missionPath string) (*MissionScene, error) {
	return LoadSceneWithOptions(gameRoot, missionPath, DefaultLoadOptions())
}

// LoadSceneWithOptions loads a mission, its terrain, and every
// distinct object prototype it references, grouping repeated
// placements into instances of the same SceneModel.
func LoadSceneWithOptions(gameRoot, missionPath string, opts LoadOptions) (*MissionScene, error) {
	missionData, err := os.ReadFile(missionPath)
	if err != nil {
		return nil, fmt.Errorf("scene: read mission: %w", err)
	}
	missionFile, err := mission.Parse(missionData)
	if err != nil {
		return nil, fmt.Errorf("scene: parse mission: %w", err)
	}

	mapFolderRel, err := mapFolderFromFooter(missionFile.Footer.MapPath)
	if err != nil {
		return nil, err
	}
	landMshPath := filepath.Join(gameRoot, mapFolderRel, "Land.msh")
	landData, err := os.ReadFile(landMshPath)
	if err != nil {
		return nil, fmt.Errorf("scene: read land mesh: %w", err)
	}
	terrainMesh, err := terrain.Parse(landData)
	if err != nil {
		return nil, fmt.Errorf("scene: parse land mesh: %w", err)
	}

	var terrainTexture *LoadedTexture
	if opts.LoadTerrainTexture {
		terrainTexture, err = ResolveTerrainTexture(gameRoot, mapFolderRel)
		if err != nil {
			return nil, err
		}
	}

	grouped := map[modelKey][]ModelInstance{}
	protoCache := map[string]*objectPrototype{}
	skipped := 0

	for _, obj := range missionFile.Objects {
		cacheKey := strings.ToLower(obj.ResourceName)
		proto, cached := protoCache[cacheKey]
		if !cached {
			resolved, err := resolveObjectPrototype(gameRoot, obj)
			if err != nil {
				return nil, err
			}
			protoCache[cacheKey] = resolved
			proto = resolved
		}
		if proto == nil {
			skipped++
			continue
		}

		instance := ModelInstance{
			Position: obj.Position,
			YawRad:   obj.Orientation[2],
			Scale:    normalizeScale(obj.Scale),
		}
		key := modelKey{archivePath: proto.archivePath, modelName: proto.modelName}
		grouped[key] = append(grouped[key], instance)
	}

	var models []SceneModel
	for key, instances := range grouped {
		model, err := loadModelFromArchive(key.archivePath, key.modelName)
		if err != nil {
			skipped += len(instances)
			continue
		}
		renderMesh := mesh.BuildRenderMesh(model, 0, 0)
		if len(renderMesh.Vertices) == 0 {
			skipped += len(instances)
			continue
		}

		var modelTexture *LoadedTexture
		if opts.LoadModelTextures {
			modelTexture, _ = ResolveModelTexture(gameRoot, key.archivePath, key.modelName)
		}

		models = append(models, SceneModel{
			ArchivePath: key.archivePath,
			ModelName:   key.modelName,
			Mesh:        renderMesh,
			Texture:     modelTexture,
			Instances:   instances,
		})
	}

	slices.SortFunc(models, func(a, b SceneModel) int { return strings.Compare(a.ModelName, b.ModelName) })

	return &MissionScene{
		GameRoot:       gameRoot,
		MissionPath:    missionPath,
		Mission:        missionFile,
		MapFolderRel:   mapFolderRel,
		LandMshPath:    landMshPath,
		Terrain:        terrainMesh,
		TerrainTexture: terrainTexture,
		Models:         models,
		SkippedObjects: skipped,
	}, nil
}

// ComputeSceneBounds returns the axis-aligned bounding box spanning
// the terrain's vertices and every model instance's position.
func ComputeSceneBounds(scene *MissionScene) ([3]float32, [3]float32, bool) {
	var minV, maxV [3]float32
	for i := range minV {
		minV[i] = math.MaxFloat32
		maxV[i] = -math.MaxFloat32
	}
	any := false

	merge := func(p [3]float32) {
		for i := 0; i < 3; i++ {
			if p[i] < minV[i] {
				minV[i] = p[i]
			}
			if p[i] > maxV[i] {
				maxV[i] = p[i]
			}
		}
		any = true
	}

	for _, pos := range scene.Terrain.Positions {
		merge(pos)
	}
	for _, model := range scene.Models {
		for _, instance := range model.Instances {
			merge(instance.Position)
		}
	}

	return minV, maxV, any
}

func normalizeScale(scale [3]float32) [3]float32 {
	out := scale
	for i, v := range out {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) || abs32(v) < 0.0001 {
			out[i] = 1.0
		}
	}
	return out
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}

func mapFolderFromFooter(mapPath string) (string, error) {
	parts := splitRelativePath(mapPath)
	if len(parts) < 2 {
		return "", fmt.Errorf("scene: invalid mission map path %q", mapPath)
	}
	parts = parts[:len(parts)-1] // drop the 'land' stem
	return filepath.Join(parts...), nil
}

func splitRelativePath(path string) []string {
	var parts []string
	for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '\\' || r == '/' }) {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func resolveObjectPrototype(gameRoot string, obj mission.Object) (*objectPrototype, error) {
	if strings.HasSuffix(strings.ToLower(obj.ResourceName), ".dat") {
		datPath := filepath.Join(gameRoot, filepath.Join(splitRelativePath(obj.ResourceName)...))
		if !isFile(datPath) {
			return nil, nil
		}
		data, err := os.ReadFile(datPath)
		if err != nil {
			return nil, fmt.Errorf("scene: read unit: %w", err)
		}
		parsed, err := unit.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("scene: parse unit: %w", err)
		}
		archivePath := filepath.Join(gameRoot, filepath.Join(splitRelativePath(parsed.ArchiveName)...))
		if !isFile(archivePath) {
			return nil, nil
		}
		return resolveArchiveModel(gameRoot, archivePath, parsed.ModelKey)
	}

	archivePath := filepath.Join(gameRoot, "objects.rlb")
	if !isFile(archivePath) {
		return nil, nil
	}
	return resolveArchiveModel(gameRoot, archivePath, obj.ResourceName)
}

func resolveArchiveModel(gameRoot, archivePath, modelKeyName string) (*objectPrototype, error) {
	if !isFile(archivePath) {
		return nil, nil
	}

	if isObjectsRegistryArchive(archivePath) {
		proto, err := resolveObjectsRegistryModel(gameRoot, archivePath, modelKeyName)
		if err != nil {
			return nil, err
		}
		if proto != nil {
			return proto, nil
		}
	}

	modelName := ensureMshSuffix(modelKeyName)
	has, err := archiveHasMeshEntry(archivePath, modelName)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return &objectPrototype{archivePath: archivePath, modelName: strings.ToLower(modelName)}, nil
}

func isObjectsRegistryArchive(archivePath string) bool {
	return strings.EqualFold(filepath.Base(archivePath), "objects.rlb")
}

func resolveObjectsRegistryModel(gameRoot, registryArchivePath, objectKey string) (*objectPrototype, error) {
	data, err := os.ReadFile(registryArchivePath)
	if err != nil {
		return nil, fmt.Errorf("scene: read registry archive: %w", err)
	}
	archive, err := nres.Open(data, nres.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("scene: open registry archive: %w", err)
	}

	entryID, ok := findRegistryEntryID(archive, objectKey)
	if !ok {
		return nil, nil
	}
	payload, err := archive.Read(entryID)
	if err != nil {
		return nil, fmt.Errorf("scene: read registry entry: %w", err)
	}
	refs := parseObjectRefs(payload)
	if len(refs) == 0 {
		return nil, nil
	}

	for _, item := range refs {
		if !hasExtension(item.resourceName, "msh") {
			continue
		}
		proto, err := resolveObjectRefModel(gameRoot, item, item.resourceName)
		if err != nil {
			return nil, err
		}
		if proto != nil {
			return proto, nil
		}
	}
	for _, item := range refs {
		if !hasExtension(item.resourceName, "bas") {
			continue
		}
		stem := strings.TrimSuffix(filepath.Base(item.resourceName), filepath.Ext(item.resourceName))
		if stem == "" {
			continue
		}
		candidate := stem + ".msh"
		proto, err := resolveObjectRefModel(gameRoot, item, candidate)
		if err != nil {
			return nil, err
		}
		if proto != nil {
			return proto, nil
		}
	}

	return nil, nil
}

func findRegistryEntryID(archive *nres.Archive, objectKey string) (nres.EntryID, bool) {
	for _, candidate := range meshNameCandidates(objectKey) {
		if id, ok := archive.Find(candidate); ok {
			return id, true
		}
	}
	return 0, false
}

func resolveObjectRefModel(gameRoot string, item objectRef, modelName string) (*objectPrototype, error) {
	archivePath := filepath.Join(gameRoot, filepath.Join(splitRelativePath(item.archiveName)...))
	if !isFile(archivePath) {
		return nil, nil
	}
	has, err := archiveHasMeshEntry(archivePath, modelName)
	if err != nil {
		return nil, err
	}
	if !has {
		return nil, nil
	}
	return &objectPrototype{archivePath: archivePath, modelName: strings.ToLower(modelName)}, nil
}

func parseObjectRefs(payload []byte) []objectRef {
	if len(payload)%objectRefStride != 0 {
		return nil
	}
	var refs []objectRef
	for off := 0; off+objectRefStride <= len(payload); off += objectRefStride {
		archiveName := decodeCStr(payload[off : off+objectRefArchiveBytes])
		resourceName := decodeCStr(payload[off+objectRefArchiveBytes : off+objectRefStride])
		if archiveName == "" || resourceName == "" {
			continue
		}
		refs = append(refs, objectRef{archiveName: archiveName, resourceName: resourceName})
	}
	return refs
}

func archiveHasMeshEntry(archivePath, requestedName string) (bool, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return false, fmt.Errorf("scene: read archive: %w", err)
	}
	archive, err := nres.Open(data, nres.OpenOptions{})
	if err != nil {
		return false, fmt.Errorf("scene: open archive: %w", err)
	}
	_, ok := findMeshEntryID(archive, requestedName)
	return ok, nil
}

func findMeshEntryID(archive *nres.Archive, requestedName string) (nres.EntryID, bool) {
	for _, candidate := range meshNameCandidates(requestedName) {
		id, ok := archive.Find(candidate)
		if !ok {
			continue
		}
		meta, ok := archive.Get(id)
		if !ok {
			continue
		}
		if meta.Kind == meshKind || hasExtension(meta.Name, "msh") {
			return id, true
		}
	}
	return 0, false
}

func meshNameCandidates(name string) []string {
	var out []string
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return out
	}

	out = pushUnique(out, trimmed)
	lower := strings.ToLower(trimmed)
	if strings.HasSuffix(lower, ".msh") {
		stem := trimmed[:len(trimmed)-4]
		if stem != "" {
			out = pushUnique(out, stem)
		}
	} else {
		out = pushUnique(out, trimmed+".msh")
	}
	return out
}

func pushUnique(items []string, value string) []string {
	for _, item := range items {
		if strings.EqualFold(item, value) {
			return items
		}
	}
	return append(items, value)
}

func ensureMshSuffix(name string) string {
	trimmed := strings.TrimSpace(name)
	if strings.HasSuffix(strings.ToLower(trimmed), ".msh") {
		return trimmed
	}
	return trimmed + ".msh"
}

func hasExtension(name, ext string) bool {
	got := strings.TrimPrefix(filepath.Ext(name), ".")
	return strings.EqualFold(got, ext)
}

func loadModelFromArchive(archivePath, modelName string) (*mesh.Model, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("scene: read model archive: %w", err)
	}
	archive, err := nres.Open(data, nres.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("scene: open model archive: %w", err)
	}
	id, ok := archive.Find(modelName)
	if !ok {
		return nil, fmt.Errorf("scene: model %q not found in %s", modelName, archivePath)
	}
	payload, err := archive.Read(id)
	if err != nil {
		return nil, fmt.Errorf("scene: read model payload: %w", err)
	}
	return mesh.ParsePayload(payload)
}

// ResolveTerrainTexture follows the map's wear file (Land1.wea /
// Land2.wea) to its primary material, resolves that material to a
// texture name via material.lib, and loads the texture from
// textures.lib.
func ResolveTerrainTexture(gameRoot, mapFolderRel string) (*LoadedTexture, error) {
	materialArchivePath := filepath.Join(gameRoot, "material.lib")
	textureArchivePath := filepath.Join(gameRoot, "textures.lib")
	if !isFile(materialArchivePath) || !isFile(textureArchivePath) {
		return nil, nil
	}

	for _, wearName := range []string{"Land1.wea", "Land2.wea"} {
		wearPath := filepath.Join(gameRoot, mapFolderRel, wearName)
		if !isFile(wearPath) {
			continue
		}
		wearPayload, err := os.ReadFile(wearPath)
		if err != nil {
			return nil, fmt.Errorf("scene: read wear file: %w", err)
		}
		materialName, ok := parsePrimaryMaterialFromWear(wearPayload)
		if !ok {
			continue
		}
		textureName, err := resolveTextureNameFromMaterialArchive(materialArchivePath, materialName)
		if err != nil {
			return nil, err
		}
		if textureName == "" {
			continue
		}
		tex, err := loadTexmByName(textureArchivePath, textureName)
		if err != nil {
			return nil, err
		}
		if tex != nil {
			return tex, nil
		}
	}

	return nil, nil
}

// ResolveModelTexture looks up a default texture for a model inside
// its own archive: a material entry named after the model (falling
// back to "DEFAULT"), resolved the same way terrain materials are,
// then loaded from textures.lib. Unlike ResolveTerrainTexture this
// path has no ported reference implementation; it reuses the same
// material-record layout since both wear-file and per-model material
// lookups resolve the same MAT0 record kind.
func ResolveModelTexture(gameRoot, archivePath, modelName string) (*LoadedTexture, error) {
	textureArchivePath := filepath.Join(gameRoot, "textures.lib")
	if !isFile(textureArchivePath) {
		return nil, nil
	}
	stem := strings.TrimSuffix(modelName, filepath.Ext(modelName))
	textureName, err := resolveTextureNameFromMaterialArchive(archivePath, stem)
	if err != nil || textureName == "" {
		return nil, nil
	}
	return loadTexmByName(textureArchivePath, textureName)
}

func parsePrimaryMaterialFromWear(data []byte) (string, bool) {
	text, err := cp1251.Decode(data)
	if err != nil {
		return "", false
	}
	text = strings.ReplaceAll(text, "\r", "")
	lines := strings.Split(text, "\n")
	if len(lines) == 0 {
		return "", false
	}
	count, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || count <= 0 {
		return "", false
	}

	end := 1 + count
	if end > len(lines) {
		end = len(lines)
	}
	for _, line := range lines[1:end] {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		if name := fields[1]; name != "" {
			return name, true
		}
	}
	return "", false
}

func resolveTextureNameFromMaterialArchive(archivePath, materialName string) (string, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return "", fmt.Errorf("scene: read material archive: %w", err)
	}
	archive, err := nres.Open(data, nres.OpenOptions{})
	if err != nil {
		return "", fmt.Errorf("scene: open material archive: %w", err)
	}

	entryID, meta, ok := findMaterialEntry(archive, materialName)
	if !ok {
		return "", nil
	}

	payload, err := archive.Read(entryID)
	if err != nil {
		return "", fmt.Errorf("scene: read material entry: %w", err)
	}
	return parsePrimaryTextureNameFromMat0(payload, meta.Attr2)
}

func findMaterialEntry(archive *nres.Archive, materialName string) (nres.EntryID, nres.EntryMeta, bool) {
	if id, ok := archive.Find(materialName); ok {
		if meta, ok := archive.Get(id); ok && meta.Kind == mat0Kind {
			return id, meta, true
		}
	}
	if id, ok := archive.Find("DEFAULT"); ok {
		if meta, ok := archive.Get(id); ok && meta.Kind == mat0Kind {
			return id, meta, true
		}
	}
	for _, e := range archive.Entries() {
		if e.Meta.Kind == mat0Kind {
			return e.ID, e.Meta, true
		}
	}
	return 0, nres.EntryMeta{}, false
}

func parsePrimaryTextureNameFromMat0(payload []byte, attr2 uint32) (string, error) {
	if len(payload) < 4 {
		return "", nil
	}
	phaseCount := int(binary.LittleEndian.Uint16(payload[0:2]))
	if phaseCount == 0 {
		return "", nil
	}

	offset := 4
	if attr2 >= 2 {
		offset += 2
	}
	if attr2 >= 3 {
		offset += 4
	}
	if attr2 >= 4 {
		offset += 4
	}

	for phase := 0; phase < phaseCount; phase++ {
		phaseOff := offset + phase*34
		if phaseOff+34 > len(payload) {
			break
		}
		rec := payload[phaseOff : phaseOff+34]
		name := decodeCStr(rec[18:34])
		if name != "" {
			return name, nil
		}
	}
	return "", nil
}

func loadTexmByName(archivePath, textureName string) (*LoadedTexture, error) {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return nil, fmt.Errorf("scene: read texture archive: %w", err)
	}
	archive, err := nres.Open(data, nres.OpenOptions{})
	if err != nil {
		return nil, fmt.Errorf("scene: open texture archive: %w", err)
	}
	id, ok := archive.Find(textureName)
	if !ok {
		return nil, nil
	}
	meta, ok := archive.Get(id)
	if !ok || meta.Kind != texture.Magic {
		return nil, nil
	}
	payload, err := archive.Read(id)
	if err != nil {
		return nil, fmt.Errorf("scene: read texture entry: %w", err)
	}
	tex, err := texture.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("scene: parse texture: %w", err)
	}
	rgba, err := tex.DecodeMipRGBA8(0)
	if err != nil {
		return nil, fmt.Errorf("scene: decode texture: %w", err)
	}
	return &LoadedTexture{Name: meta.Name, Width: tex.Header.Width, Height: tex.Header.Height, RGBA8: rgba}, nil
}

func decodeCStr(b []byte) string {
	end := len(b)
	for i, c := range b {
		if c == 0 {
			end = i
			break
		}
	}
	s, err := cp1251.Decode(b[:end])
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

// LoadPreviewImage decodes a loose .tga or .bmp preview image shipped
// beside a mission's own file, if one is present. It returns
// (nil, nil) when no such file exists — this is an optional asset,
// not a load failure.
func LoadPreviewImage(missionPath string) (image.Image, error) {
	path, ok := splash.FindBeside(missionPath, "preview", "splash", strings.TrimSuffix(filepath.Base(missionPath), filepath.Ext(missionPath)))
	if !ok {
		return nil, nil
	}
	return splash.Load(path)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
