package pdfutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/SignDrop/internal/pdf/pdftest"
)

func TestPageCountRejectsNonPDF(t *testing.T) {
	_, err := PageCount([]byte("hello"))
	assert.ErrorIs(t, err, ErrNotPDF)
	_, err = PageCount(nil)
	assert.ErrorIs(t, err, ErrNotPDF)
}

func TestPageCountMalformed(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := PageCount([]byte("%PDF-1.4\ngarbage without xref"))
		assert.Error(t, err)
	})
}

func TestPageCount(t *testing.T) {
	n, err := PageCount(pdftest.MinimalPDF(3))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
