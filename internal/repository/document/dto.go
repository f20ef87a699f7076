package document

import (
	"encoding/binary"
	"fmt"
	"math"

	domdoc "github.com/kailas-cloud/bookrec/internal/domain/document"
)

const dtoVersion = 1

// bookDTO is the stored JSON shape. Vectors are packed little-endian float32.
type bookDTO struct {
	Version     int      `json:"v"`
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Authors     string   `json:"authors,omitempty"`
	Categories  string   `json:"categories,omitempty"`
	Description []string `json:"description,omitempty"`
	Dense       []byte   `json:"dense,omitempty"`
	TokenDim    int      `json:"token_dim,omitempty"`
	Tokens      [][]byte `json:"tokens,omitempty"`
}

func toDTO(e domdoc.Embedded) bookDTO {
	d := e.Doc
	out := bookDTO{
		Version:     dtoVersion,
		ID:          d.ID(),
		Title:       d.Title(),
		Authors:     d.Authors(),
		Categories:  d.Categories(),
		Description: d.Description(),
		Dense:       vectorToBytes(e.Dense),
	}
	if len(e.Tokens) > 0 {
		out.Tokens = make([][]byte, len(e.Tokens))
		for i, passage := range e.Tokens {
			if out.TokenDim == 0 && len(passage) > 0 {
				out.TokenDim = len(passage[0])
			}
			out.Tokens[i] = vectorToBytes(flatten(passage))
		}
	}
	return out
}

func fromDTO(in bookDTO) (domdoc.Embedded, error) {
	if in.Version != dtoVersion {
		return domdoc.Embedded{}, fmt.Errorf("unsupported record version %d", in.Version)
	}
	e := domdoc.Embedded{
		Doc:   domdoc.Reconstruct(in.ID, in.Title, in.Authors, in.Categories, in.Description),
		Dense: bytesToVector(in.Dense),
	}
	if len(in.Tokens) > 0 {
		e.Tokens = make([][][]float32, len(in.Tokens))
		for i, raw := range in.Tokens {
			flat := bytesToVector(raw)
			if in.TokenDim <= 0 || len(flat)%in.TokenDim != 0 {
				if len(flat) == 0 {
					continue
				}
				return domdoc.Embedded{}, fmt.Errorf("passage %d: %d components do not split into %d-dim tokens",
					i, len(flat), in.TokenDim)
			}
			e.Tokens[i] = split(flat, in.TokenDim)
		}
	}
	return e, nil
}

func flatten(tokens [][]float32) []float32 {
	n := 0
	for _, t := range tokens {
		n += len(t)
	}
	out := make([]float32, 0, n)
	for _, t := range tokens {
		out = append(out, t...)
	}
	return out
}

func split(flat []float32, dim int) [][]float32 {
	out := make([][]float32, len(flat)/dim)
	for i := range out {
		out[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return out
}

// vectorToBytes serializes []float32 (4 bytes per float, little-endian).
func vectorToBytes(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToVector deserializes bytes back to []float32.
func bytesToVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
