package registry

// Media types for program tables in OCI registries.
const (
	// ArtifactType identifies program tables as an OCI 1.1 artifact type.
	ArtifactType = "application/vnd.meigma.vpt"

	// MediaTypeTable is the media type for an uncompressed table layer.
	MediaTypeTable = "application/vnd.meigma.vpt.v0"

	// MediaTypeTableZstd is the media type for a zstd compressed table layer.
	MediaTypeTableZstd = MediaTypeTable + "+zstd"
)

// Manifest annotations written by Push.
const (
	// AnnotationVendorID holds the table's vendor id as "0x%08x".
	AnnotationVendorID = "io.meigma.vpt.vendor"

	// AnnotationVersion holds the table's format version as "major.minor".
	AnnotationVersion = "io.meigma.vpt.version"

	// AnnotationProgramCount holds the program count declared in the table header.
	AnnotationProgramCount = "io.meigma.vpt.programs"
)

// Compression selects how the table layer is encoded in the registry.
type Compression uint8

const (
	// CompressionNone stores the table bytes as is.
	CompressionNone Compression = iota

	// CompressionZstd stores the table zstd compressed.
	CompressionZstd
)

// String returns the compression name.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

func (c Compression) mediaType() string {
	if c == CompressionZstd {
		return MediaTypeTableZstd
	}
	return MediaTypeTable
}

func compressionFor(mediaType string) (Compression, bool) {
	switch mediaType {
	case MediaTypeTable:
		return CompressionNone, true
	case MediaTypeTableZstd:
		return CompressionZstd, true
	default:
		return 0, false
	}
}
