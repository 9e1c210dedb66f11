package server

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestChooseFrameSmall(t *testing.T) {
	size, fits := chooseFrame("OK")
	require.True(t, fits)
	require.Equal(t, smallFrameSize, size)
}

func TestChooseFrameOrder(t *testing.T) {
	resp := strings.Repeat("a", 100)
	size, fits := chooseFrame(resp)
	require.True(t, fits)
	require.Equal(t, orderFrameSize, size)
}

func TestChooseFrameTooBigPaginates(t *testing.T) {
	resp := strings.Repeat("a", 5000)
	_, fits := chooseFrame(resp)
	require.False(t, fits)

	pages := paginate(resp, bookFrameSize)
	require.Len(t, pages, 5)
	require.Equal(t, resp, strings.Join(pages, ""))
}

func TestFormatPagesHeaderZeroPads(t *testing.T) {
	require.Equal(t, "PAGES >> 0003\n", formatPagesHeader(3))
	require.Equal(t, "PAGES >> 1234\n", formatPagesHeader(1234))
}

func TestNulTerminatedStripsPadding(t *testing.T) {
	buf := make([]byte, RequestFrameSize)
	copy(buf, "get order 1")
	require.Equal(t, "get order 1", nulTerminated(buf))
}
