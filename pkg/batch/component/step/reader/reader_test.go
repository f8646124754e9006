package reader

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/communes/pkg/batch/core/application/port"
	exception "github.com/tigerroll/communes/pkg/batch/support/util/exception"
)

type row struct {
	Code  string
	Name  *string
	Extra *string
}

func mapRow(fs FieldSet) (row, error) {
	code, _ := fs.Value("code")
	if code == "XXXXX" {
		return row{}, errors.New("unmappable code")
	}
	return row{Code: code, Name: fs.Ptr("name"), Extra: fs.Ptr("extra")}, nil
}

func stringSource(content string) Source {
	return func(context.Context) (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(content)), nil
	}
}

func readAll[T any](t *testing.T, r port.ItemReader[T]) ([]T, []error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, r.Open(ctx))
	defer func() { require.NoError(t, r.Close(ctx)) }()

	var items []T
	var errs []error
	for i := 0; i < 100; i++ {
		item, err := r.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return items, errs
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		items = append(items, item)
	}
	t.Fatal("reader never reached the end of input")
	return nil, nil
}

func TestDelimitedFileReader_ReadsAfterHeader(t *testing.T) {
	content := "code;name;extra\n01001;L ABERGEMENT;x\n01002;;y\n"
	r := NewDelimitedFileReader("communes", stringSource(content), DelimitedConfig{
		Delimiter:   ';',
		LinesToSkip: 1,
		Names:       []string{"code", "name", "extra"},
	}, mapRow)

	items, errs := readAll[row](t, r)
	assert.Empty(t, errs)
	require.Len(t, items, 2)
	assert.Equal(t, "01001", items[0].Code)
	assert.Equal(t, "L ABERGEMENT", *items[0].Name)
	require.NotNil(t, items[1].Name, "an empty token is a present value")
	assert.Equal(t, "", *items[1].Name)
}

func TestDelimitedFileReader_MalformedLinesAreParseErrors(t *testing.T) {
	content := "code;name;extra\n01001;A;x\n01002;B\nXXXXX;C;z\n01004;D;w\n"
	r := NewDelimitedFileReader("communes", stringSource(content), DelimitedConfig{
		Delimiter:   ';',
		LinesToSkip: 1,
		Names:       []string{"code", "name", "extra"},
	}, mapRow)

	items, errs := readAll[row](t, r)
	require.Len(t, items, 2)
	assert.Equal(t, "01004", items[1].Code, "the reader moves past malformed lines")
	require.Len(t, errs, 2)

	var pe *ParseError
	require.ErrorAs(t, errs[0], &pe)
	assert.Equal(t, 3, pe.Line)
	assert.Equal(t, "01002;B", pe.Input)
	assert.Contains(t, pe.Error(), "expected 3 actual 2")
	assert.True(t, exception.IsErrorOfType(errs[0], "ParseError"))

	require.ErrorAs(t, errs[1], &pe)
	assert.Equal(t, 4, pe.Line)
	assert.Contains(t, pe.Error(), "unmappable code")
}

func TestDelimitedFileReader_AllowMissingColumns(t *testing.T) {
	content := "01001;A\n01002;B;x;too-many\n"
	r := NewDelimitedFileReader("communes", stringSource(content), DelimitedConfig{
		Delimiter:           ';',
		Names:               []string{"code", "name", "extra"},
		AllowMissingColumns: true,
	}, mapRow)

	items, errs := readAll[row](t, r)
	require.Len(t, items, 1)
	assert.Nil(t, items[0].Extra)
	require.Len(t, errs, 1)
	assert.True(t, exception.IsErrorOfType(errs[0], "ParseError"))
}

func TestDelimitedFileReader_FileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "communes.csv")
	require.NoError(t, os.WriteFile(path, []byte("header\n01001,A,x\n"), 0o644))

	r := NewDelimitedFileReader("communes", FileSource(path), DelimitedConfig{
		LinesToSkip: 1,
		Names:       []string{"code", "name", "extra"},
	}, mapRow)
	items, errs := readAll[row](t, r)
	assert.Empty(t, errs)
	require.Len(t, items, 1)
	assert.Equal(t, "A", *items[0].Name)

	missing := NewDelimitedFileReader("missing", FileSource(filepath.Join(t.TempDir(), "none.csv")), DelimitedConfig{}, mapRow)
	err := missing.Open(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsBatchError(err))
}

func TestPagingItemReader_OffsetPages(t *testing.T) {
	data := []int{1, 2, 3, 4, 5, 6, 7}
	var requested []Page[int]
	r := NewPagingItemReader("numbers", 3, func(_ context.Context, p Page[int]) ([]int, error) {
		requested = append(requested, p)
		end := p.Offset + p.Size
		if end > len(data) {
			end = len(data)
		}
		return data[p.Offset:end], nil
	})

	items, errs := readAll[int](t, r)
	assert.Empty(t, errs)
	assert.Equal(t, data, items)
	require.Len(t, requested, 3)
	assert.False(t, requested[0].HasLast)
	assert.Equal(t, 3, requested[1].Offset)
	assert.Equal(t, 3, requested[1].Last)
	assert.Equal(t, 2, requested[2].Number)
	assert.Equal(t, 7, r.ReadCount())
}

func TestPagingItemReader_KeysetAndExactPage(t *testing.T) {
	data := []int{10, 20, 30, 40}
	calls := 0
	r := NewPagingItemReader("keyset", 2, func(_ context.Context, p Page[int]) ([]int, error) {
		calls++
		var out []int
		for _, v := range data {
			if (!p.HasLast || v > p.Last) && len(out) < p.Size {
				out = append(out, v)
			}
		}
		return out, nil
	})

	items, _ := readAll[int](t, r)
	assert.Equal(t, data, items)
	assert.Equal(t, 3, calls, "a full last page needs one more fetch to see the end")
}

func TestPagingItemReader_FetchErrorIsRetryableWhenTransient(t *testing.T) {
	attempts := 0
	r := NewPagingItemReader("flaky", 2, func(_ context.Context, p Page[int]) ([]int, error) {
		attempts++
		if attempts == 1 {
			return nil, exception.NewBatchError("store", "connection reset", nil, false, true)
		}
		return []int{1}, nil
	})
	ctx := context.Background()
	require.NoError(t, r.Open(ctx))

	_, err := r.Read(ctx)
	require.Error(t, err)
	assert.True(t, exception.IsTransient(err))

	item, err := r.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, item)
	_, err = r.Read(ctx)
	assert.ErrorIs(t, err, port.ErrNoMoreItems)
}
