package pipeline

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode"

	parquetbuffer "github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	fruition "github.com/lucasjlepore/fruition-analyzer"
)

// parquetColumnNames maps display names to unique identifier-safe column
// names: "Time (s)" becomes "time_s" and "ExG 1" becomes "ExG_1".
func parquetColumnNames(names []string) []string {
	out := make([]string, len(names))
	used := make(map[string]int, len(names))
	for i, name := range names {
		var b strings.Builder
		lastUnderscore := false
		for _, r := range name {
			if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
				b.WriteRune(r)
				lastUnderscore = false
				continue
			}
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
		col := strings.TrimSuffix(b.String(), "_")
		if col == "" || unicode.IsDigit(rune(col[0])) {
			col = "c_" + col
		}
		if n := used[col]; n > 0 {
			used[col] = n + 1
			col = col + "_" + strconv.Itoa(n+1)
		} else {
			used[col] = 1
		}
		out[i] = col
	}
	return out
}

func doubleColumn(name string) string {
	return "name=" + name + ", type=DOUBLE"
}

// writePowerTableParquet writes t to a local parquet file with the same
// columns as the CSV form under sanitized names.
func writePowerTableParquet(path string, t *fruition.PowerTable) error {
	header := t.Header()
	names := parquetColumnNames(header)
	names[0] = "time_s"
	names[len(names)-1] = "notes"

	md := make([]string, 0, len(names))
	md = append(md, "name="+names[0]+", type=INT32")
	for _, n := range names[1 : len(names)-1] {
		md = append(md, doubleColumn(n))
	}
	md = append(md, "name="+names[len(names)-1]+", type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY")

	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return err
	}
	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		_ = fw.Close()
		return err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	// The writer buffers each record slice, so every row gets its own.
	for i, sec := range t.Seconds {
		rec := make([]interface{}, len(names))
		rec[0] = int32(sec)
		rec[1] = t.Variance[i]
		for c := range t.Channels {
			rec[2+c] = t.Power[c][i]
		}
		rec[len(rec)-1] = t.Notes[i]
		if err := pw.Write(rec); err != nil {
			_ = pw.WriteStop()
			_ = fw.Close()
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		_ = fw.Close()
		return err
	}
	return fw.Close()
}

// marshalWindowTableParquet encodes the window table in memory: an offset_s
// column from -W to W followed by one column per window.
func marshalWindowTableParquet(t *fruition.WindowTable) ([]byte, error) {
	labels := t.Labels()
	names := parquetColumnNames(append([]string{"offset_s"}, labels...))
	md := make([]string, 0, len(names))
	md = append(md, "name="+names[0]+", type=INT32")
	for _, n := range names[1:] {
		md = append(md, doubleColumn(n))
	}

	fw := parquetbuffer.NewBufferFile()
	pw, err := writer.NewCSVWriter(md, fw, 4)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	cols := make([][]float64, len(labels))
	for i, l := range labels {
		cols[i], _ = t.Column(l)
	}
	half := t.Length() / 2
	for row := 0; row < t.Length(); row++ {
		rec := make([]interface{}, len(names))
		rec[0] = int32(row - half)
		for i := range cols {
			rec[1+i] = cols[i][row]
		}
		if err := pw.Write(rec); err != nil {
			_ = pw.WriteStop()
			return nil, err
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	if err := fw.Close(); err != nil {
		return nil, err
	}
	return append([]byte(nil), fw.Bytes()...), nil
}

func writeWindowTableParquet(path string, t *fruition.WindowTable) error {
	data, err := marshalWindowTableParquet(t)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
