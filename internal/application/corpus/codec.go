package corpus

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/turtacn/ResumeLens/pkg/errors"
	"github.com/turtacn/ResumeLens/pkg/types/resume"
)

// Container layout:
//
//	"RLCORPUS" | version byte | zstd( record* )
//	record = uvarint(len) | protobuf message
//
// The first record is a Header, every following record an Example.
const (
	containerMagic   = "RLCORPUS"
	containerVersion = 1

	maxRecordSize = 64 << 20
)

// Header field numbers.
const (
	headerPartition   protowire.Number = 1
	headerMode        protowire.Number = 2
	headerLabelSource protowire.Number = 3
	headerRunID       protowire.Number = 4
	headerCreatedUnix protowire.Number = 5
)

// Example field numbers.
const (
	exampleID   protowire.Number = 1
	exampleText protowire.Number = 2
	exampleSpan protowire.Number = 3
)

// Span field numbers.
const (
	spanStart  protowire.Number = 1
	spanEnd    protowire.Number = 2
	spanLabel  protowire.Number = 3
	spanSource protowire.Number = 4
)

// Header describes one partition container.
type Header struct {
	Partition   string
	Mode        string
	LabelSource string
	RunID       string
	CreatedUnix int64
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer streams examples into a container. Close must be called to flush
// the compressed stream; it does not close the underlying writer.
type Writer struct {
	enc   *zstd.Encoder
	buf   []byte
	count int
}

// NewWriter writes the preamble and header to w.
func NewWriter(w io.Writer, h Header) (*Writer, error) {
	if _, err := io.WriteString(w, containerMagic); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "corpus: write preamble")
	}
	if _, err := w.Write([]byte{containerVersion}); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeStorageError, "corpus: write preamble")
	}
	enc, err := zstd.NewWriter(w)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "corpus: init compressor")
	}
	cw := &Writer{enc: enc}
	if err := cw.writeRecord(encodeHeader(h)); err != nil {
		_ = enc.Close()
		return nil, err
	}
	return cw, nil
}

// WriteExample appends one example.
func (w *Writer) WriteExample(ex Example) error {
	if err := w.writeRecord(encodeExample(ex)); err != nil {
		return err
	}
	w.count++
	return nil
}

// Count returns the number of examples written.
func (w *Writer) Count() int { return w.count }

// Close flushes the compressed stream.
func (w *Writer) Close() error {
	if err := w.enc.Close(); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "corpus: flush container")
	}
	return nil
}

func (w *Writer) writeRecord(rec []byte) error {
	w.buf = protowire.AppendVarint(w.buf[:0], uint64(len(rec)))
	w.buf = append(w.buf, rec...)
	if _, err := w.enc.Write(w.buf); err != nil {
		return errors.Wrap(err, errors.ErrCodeStorageError, "corpus: write record")
	}
	return nil
}

func encodeHeader(h Header) []byte {
	var b []byte
	b = appendString(b, headerPartition, h.Partition)
	b = appendString(b, headerMode, h.Mode)
	b = appendString(b, headerLabelSource, h.LabelSource)
	b = appendString(b, headerRunID, h.RunID)
	b = protowire.AppendTag(b, headerCreatedUnix, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(h.CreatedUnix))
	return b
}

func encodeExample(ex Example) []byte {
	var b []byte
	b = appendString(b, exampleID, ex.ID)
	b = appendString(b, exampleText, ex.Text)
	for _, s := range ex.Spans {
		var sb []byte
		sb = protowire.AppendTag(sb, spanStart, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(s.Start))
		sb = protowire.AppendTag(sb, spanEnd, protowire.VarintType)
		sb = protowire.AppendVarint(sb, uint64(s.End))
		sb = appendString(sb, spanLabel, string(s.Label))
		sb = appendString(sb, spanSource, string(s.Source))
		b = protowire.AppendTag(b, exampleSpan, protowire.BytesType)
		b = protowire.AppendBytes(b, sb)
	}
	return b
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// ---------------------------------------------------------------------------
// Reader
// ---------------------------------------------------------------------------

// Reader streams examples out of a container.
type Reader struct {
	dec    *zstd.Decoder
	br     *bufio.Reader
	header Header
	buf    []byte
}

// NewReader validates the preamble and reads the header.
func NewReader(r io.Reader) (*Reader, error) {
	pre := make([]byte, len(containerMagic)+1)
	if _, err := io.ReadFull(r, pre); err != nil {
		return nil, malformed("truncated preamble", err)
	}
	if !bytes.Equal(pre[:len(containerMagic)], []byte(containerMagic)) {
		return nil, malformed("not a corpus container", nil)
	}
	if pre[len(containerMagic)] != containerVersion {
		return nil, errors.MalformedInput("corpus: unsupported container version").
			WithDetailf("version=%d", pre[len(containerMagic)])
	}
	dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
	if err != nil {
		return nil, malformed("bad compressed stream", err)
	}
	cr := &Reader{dec: dec, br: bufio.NewReader(dec)}

	rec, err := cr.readRecord()
	if err != nil {
		dec.Close()
		if err == io.EOF {
			return nil, malformed("missing header", nil)
		}
		return nil, err
	}
	if cr.header, err = decodeHeader(rec); err != nil {
		dec.Close()
		return nil, err
	}
	return cr, nil
}

// Header returns the container header.
func (r *Reader) Header() Header { return r.header }

// Next returns the next example, or io.EOF after the last one.
func (r *Reader) Next() (Example, error) {
	rec, err := r.readRecord()
	if err != nil {
		return Example{}, err
	}
	return decodeExample(rec)
}

// ReadAll drains the remaining examples.
func (r *Reader) ReadAll() ([]Example, error) {
	var out []Example
	for {
		ex, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, ex)
	}
}

// Close releases the decompressor.
func (r *Reader) Close() error {
	r.dec.Close()
	return nil
}

func (r *Reader) readRecord() ([]byte, error) {
	n, err := binary.ReadUvarint(r.br)
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, malformed("bad record length", err)
	}
	if n > maxRecordSize {
		return nil, errors.MalformedInput("corpus: record too large").WithDetailf("size=%d", n)
	}
	if cap(r.buf) < int(n) {
		r.buf = make([]byte, n)
	}
	r.buf = r.buf[:n]
	if _, err := io.ReadFull(r.br, r.buf); err != nil {
		return nil, malformed("truncated record", err)
	}
	return r.buf, nil
}

func decodeHeader(b []byte) (Header, error) {
	var h Header
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == headerCreatedUnix && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			h.CreatedUnix = int64(x)
			return n, nil
		case typ == protowire.BytesType && num >= headerPartition && num <= headerRunID:
			s, n := protowire.ConsumeString(v)
			switch num {
			case headerPartition:
				h.Partition = s
			case headerMode:
				h.Mode = s
			case headerLabelSource:
				h.LabelSource = s
			case headerRunID:
				h.RunID = s
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	return h, err
}

func decodeExample(b []byte) (Example, error) {
	var ex Example
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		if typ != protowire.BytesType {
			return protowire.ConsumeFieldValue(num, typ, v), nil
		}
		switch num {
		case exampleID, exampleText:
			s, n := protowire.ConsumeString(v)
			if num == exampleID {
				ex.ID = s
			} else {
				ex.Text = s
			}
			return n, nil
		case exampleSpan:
			raw, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, nil
			}
			span, err := decodeSpan(raw)
			if err != nil {
				return 0, err
			}
			ex.Spans = append(ex.Spans, span)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	return ex, err
}

func decodeSpan(b []byte) (resume.Span, error) {
	var s resume.Span
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case typ == protowire.VarintType && (num == spanStart || num == spanEnd):
			x, n := protowire.ConsumeVarint(v)
			if num == spanStart {
				s.Start = int(x)
			} else {
				s.End = int(x)
			}
			return n, nil
		case typ == protowire.BytesType && num == spanLabel:
			str, n := protowire.ConsumeString(v)
			s.Label = resume.Label(str)
			return n, nil
		case typ == protowire.BytesType && num == spanSource:
			str, n := protowire.ConsumeString(v)
			s.Source = resume.Source(str)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, v), nil
	})
	if err != nil {
		return s, err
	}
	if !s.Label.Valid() {
		return s, errors.MalformedInput("corpus: unknown span label").WithDetailf("label=%q", s.Label)
	}
	return s, nil
}

// walkFields calls fn for every field of message b. fn consumes the value
// and returns the number of bytes used or a negative protowire error code.
func walkFields(b []byte, fn func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return malformed("bad field tag", protowire.ParseError(n))
		}
		b = b[n:]
		m, err := fn(num, typ, b)
		if err != nil {
			return err
		}
		if m < 0 {
			return malformed("bad field value", protowire.ParseError(m))
		}
		b = b[m:]
	}
	return nil
}

func malformed(msg string, cause error) error {
	e := errors.MalformedInput("corpus: " + msg)
	if cause != nil {
		return e.WithCause(cause)
	}
	return e
}
