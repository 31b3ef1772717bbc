package imgrec

import (
	"io"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/iumi/pinem/dte"
	"github.com/iumi/pinem/nd"
	"github.com/iumi/pinem/util"
	"github.com/iumi/pinem/viewer"
)

// WriteFits streams a as a 64-bit float FITS image to w.  The array is row
// major, so its shape is reversed to give the FITS axes.
func WriteFits(w io.Writer, metadata []fitsio.Card, a nd.Array) error {
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	dims := make([]int, 0, a.Ndim())
	for i := a.Ndim() - 1; i >= 0; i-- {
		dims = append(dims, a.Shape[i])
	}
	if len(dims) == 0 {
		dims = []int{1}
	}
	im := fitsio.NewImage(-64, dims)
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	buf := make([]float64, len(a.Data))
	copy(buf, a.Data)
	err = im.Write(buf)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// MainArray picks the array of an export worth saving: the camera image,
// or the spectral image cube.  It returns false if there is none.
func MainArray(e dte.Export) (dte.Record, bool) {
	for _, r := range e.Records {
		if r.Name == viewer.SPIMRecord || strings.HasPrefix(r.Name, "Camera") {
			if len(r.Data) > 0 {
				return r, true
			}
		}
	}
	return dte.Record{}, false
}

// ExportCards builds the FITS header cards describing an export
func ExportCards(e dte.Export, rec dte.Record) []fitsio.Card {
	cards := []fitsio.Card{
		{Name: "ORIGIN", Value: e.Name, Comment: "export name"},
		{Name: "EXPORTID", Value: e.ID.String(), Comment: "export uuid"},
		{Name: "DATE-OBS", Value: e.Time.UTC().Format("2006-01-02T15:04:05.000"), Comment: "UTC time of export"},
		{Name: "RECORD", Value: rec.Name, Comment: "record name"},
	}
	if len(rec.Data) > 0 {
		cards = append(cards, fitsio.Card{Name: "SHAPE", Value: util.IntSliceToCSV(rec.Data[0].Shape), Comment: "row major shape of the record"})
	}
	if g, ok := e.Get(viewer.GRecord); ok && len(g.Data) > 0 && len(g.Data[0].Data) > 0 {
		cards = append(cards, fitsio.Card{Name: "GPRED", Value: g.Data[0].Data[0], Comment: "predicted coupling strength g"})
	}
	for _, ax := range rec.Axes {
		cards = append(cards, fitsio.Card{Name: "AX" + ax.Label, Value: ax.Index, Comment: ax.Label + " axis index, " + ax.Units})
	}
	return cards
}

// WriteExportFits writes the main array of e with its metadata
func WriteExportFits(w io.Writer, e dte.Export) error {
	rec, ok := MainArray(e)
	if !ok {
		return ErrNothingToWrite
	}
	return WriteFits(w, ExportCards(e, rec), rec.Data[0])
}
