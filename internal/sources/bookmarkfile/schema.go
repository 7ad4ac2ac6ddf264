package bookmarkfile

// FileEntry represents a single link entry in the import YAML.
type FileEntry struct {
	URL   string `yaml:"url"`
	Title string `yaml:"title"`
	Space string `yaml:"space"`
}

// ImportFile is the root structure of a link import file.
type ImportFile struct {
	Links []FileEntry `yaml:"links"`
}
