package discovery

import (
	"errors"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Defaults match the Spring Boot example corpus the generator is gated on.
const (
	DefaultPrefix     = "spring-boot-"
	DefaultDescriptor = "pom.xml"
	DefaultMarker     = "<packaging>war"
)

// Packaging classifies how an example project is packaged.
type Packaging string

const (
	PackagingArchive Packaging = "archive" // deployable web archive, unsupported
	PackagingOther   Packaging = "other"
	PackagingUnknown Packaging = "unknown" // descriptor missing
)

// MissingPolicy decides what happens to an example without a build descriptor.
type MissingPolicy string

const (
	MissingInclude MissingPolicy = "include"
	MissingExclude MissingPolicy = "exclude"
)

// ParseMissingPolicy converts a config value into a MissingPolicy.
func ParseMissingPolicy(s string) (MissingPolicy, error) {
	switch MissingPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", MissingInclude:
		return MissingInclude, nil
	case MissingExclude:
		return MissingExclude, nil
	default:
		return "", fmt.Errorf("unknown missing-descriptor policy: %q (use: include, exclude)", s)
	}
}

// Example is one sample application directory.
type Example struct {
	Name           string `json:"name"`
	Path           string `json:"path"`
	DescriptorPath string `json:"descriptor_path"`
}

// Candidate is a prefix-matching directory together with its classification.
type Candidate struct {
	Example
	Packaging Packaging `json:"packaging"`
	Excluded  bool      `json:"excluded"`
	Reason    string    `json:"reason,omitempty"`
}

// Options configures a Discoverer. Zero fields fall back to the defaults.
type Options struct {
	Root       string
	Prefix     string
	Descriptor string
	Marker     string
	Missing    MissingPolicy
}

// Discoverer enumerates example projects under a root directory.
type Discoverer struct {
	opts Options
}

// New returns a Discoverer for the given options.
func New(opts Options) *Discoverer {
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if opts.Descriptor == "" {
		opts.Descriptor = DefaultDescriptor
	}
	if opts.Marker == "" {
		opts.Marker = DefaultMarker
	}
	if opts.Missing == "" {
		opts.Missing = MissingInclude
	}
	return &Discoverer{opts: opts}
}

// Options returns the effective options.
func (d *Discoverer) Options() Options {
	return d.opts
}

// All yields every included example in name order. Each call re-reads the
// filesystem, so ranging twice over an unchanged tree yields the same set.
// Iteration stops at the first error.
func (d *Discoverer) All() iter.Seq2[Example, error] {
	return func(yield func(Example, error) bool) {
		examples, err := d.candidates()
		if err != nil {
			yield(Example{}, err)
			return
		}
		for _, ex := range examples {
			c, err := d.classify(ex)
			if err != nil {
				yield(Example{}, err)
				return
			}
			if c.Excluded {
				continue
			}
			if !yield(ex, nil) {
				return
			}
		}
	}
}

// Discover collects All into a slice.
func (d *Discoverer) Discover() ([]Example, error) {
	var out []Example
	for ex, err := range d.All() {
		if err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

// Survey classifies every candidate, including the excluded ones.
func (d *Discoverer) Survey() ([]Candidate, error) {
	examples, err := d.candidates()
	if err != nil {
		return nil, err
	}
	out := make([]Candidate, 0, len(examples))
	for _, ex := range examples {
		c, err := d.classify(ex)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Classify reads the example's build descriptor and reports its packaging.
// A missing descriptor yields PackagingUnknown; other read failures are returned.
func (d *Discoverer) Classify(ex Example) (Packaging, error) {
	data, err := os.ReadFile(ex.DescriptorPath)
	if errors.Is(err, fs.ErrNotExist) {
		return PackagingUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("read descriptor for %s: %w", ex.Name, err)
	}
	if strings.Contains(string(data), d.opts.Marker) {
		return PackagingArchive, nil
	}
	return PackagingOther, nil
}

func (d *Discoverer) classify(ex Example) (Candidate, error) {
	pkg, err := d.Classify(ex)
	if err != nil {
		return Candidate{}, err
	}
	c := Candidate{Example: ex, Packaging: pkg}
	switch {
	case pkg == PackagingArchive:
		c.Excluded = true
		c.Reason = fmt.Sprintf("%s declares %s", d.opts.Descriptor, d.opts.Marker)
	case pkg == PackagingUnknown && d.opts.Missing == MissingExclude:
		c.Excluded = true
		c.Reason = d.opts.Descriptor + " missing"
	}
	return c, nil
}

// candidates lists direct child directories of the root matching the prefix.
func (d *Discoverer) candidates() ([]Example, error) {
	absRoot, err := filepath.Abs(d.opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve examples root: %w", err)
	}

	entries, err := os.ReadDir(absRoot)
	if err != nil {
		return nil, fmt.Errorf("read examples root: %w", err)
	}

	var out []Example
	for _, entry := range entries {
		if !strings.HasPrefix(entry.Name(), d.opts.Prefix) {
			continue
		}
		dir := filepath.Join(absRoot, entry.Name())
		// Follow symlinks so linked example checkouts still count.
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		out = append(out, Example{
			Name:           entry.Name(),
			Path:           dir,
			DescriptorPath: filepath.Join(dir, d.opts.Descriptor),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
