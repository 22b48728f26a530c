package catalog

const (
	primaryBase = "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/"
	mirrorBase  = "https://hf-mirror.com/ggerganov/whisper.cpp/resolve/main/"
)

// DefaultVariants returns the built-in whisper.cpp model table
func DefaultVariants() []Variant {
	return []Variant{
		whisperCpp("tiny", "Tiny", "ggml-tiny.bin", "77.7 MB"),
		whisperCpp("base", "Base", "ggml-base.bin", "148 MB"),
		whisperCpp("small", "Small", "ggml-small.bin", "488 MB"),
		whisperCpp("medium", "Medium", "ggml-medium.bin", "1.53 GB"),
		whisperCpp("large-v1", "Large(v1)", "ggml-large-v1.bin", "3.09 GB"),
		whisperCpp("large-v2", "Large(v2)", "ggml-large-v2.bin", "3.09 GB"),
		whisperCpp("large-v3", "Large(v3)", "ggml-large-v3.bin", "3.09 GB"),
		{
			ID:                "distil-large-v3",
			Name:              "Distil Large(v3)",
			InstalledFilename: "ggml-distil-large-v3.bin",
			SizeLabel:         "1.52 GB",
			PrimaryURL:        "https://huggingface.co/distil-whisper/distil-large-v3-ggml/resolve/main/ggml-distil-large-v3.bin?download=true",
			MirrorURL:         "https://hf-mirror.com/distil-whisper/distil-large-v3-ggml/resolve/main/ggml-distil-large-v3.bin?download=true",
		},
	}
}

func whisperCpp(id, name, filename, size string) Variant {
	return Variant{
		ID:                id,
		Name:              name,
		InstalledFilename: filename,
		SizeLabel:         size,
		PrimaryURL:        primaryBase + filename,
		MirrorURL:         mirrorBase + filename + "?download=true",
	}
}
