package models

import (
	"bufio"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/cnclabs/kgekit/pkg/knowledge"
	"github.com/cnclabs/kgekit/pkg/nn"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// WriteEmbeddings writes one parameter as "rows dim" followed by one
// "name v1 v2 ..." line per row
func WriteEmbeddings(w io.Writer, p *nn.Parameter, names *knowledge.Vocabulary) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d\n", p.Rows, p.Cols)
	for i := 0; i < p.Rows; i++ {
		name := names.Name(int64(i))
		if name == "" {
			name = fmt.Sprint(i)
		}
		fmt.Fprintf(bw, "%s", name)
		for _, v := range p.Row(int64(i)) {
			fmt.Fprintf(bw, " %.6f", v)
		}
		fmt.Fprintln(bw)
	}
	return bw.Flush()
}

// SaveEmbeddings writes every parameter of model into dir as <name>.txt.
// Parameters whose name starts with "entity" are labelled with entity names,
// the others with relation names.
func SaveEmbeddings(fs afero.Fs, dir string, model nn.Model, source *knowledge.TripleSource) ([]string, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "creating %s", dir)
	}

	var written []string
	for _, p := range model.Parameters() {
		names := source.Relations
		if strings.HasPrefix(p.Name, "entity") {
			names = source.Entities
		}

		path := filepath.Join(dir, p.Name+".txt")
		f, err := fs.Create(path)
		if err != nil {
			return written, errors.Wrapf(err, "creating %s", path)
		}
		err = WriteEmbeddings(f, p, names)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, errors.Wrapf(err, "writing %s", path)
		}
		written = append(written, path)
	}
	return written, nil
}
