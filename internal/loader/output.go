package loader

import (
	"bufio"
	"encoding/csv"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/synthpop/internal/allocate"
	"github.com/sells-group/synthpop/internal/crs"
	"github.com/sells-group/synthpop/internal/geotable"
)

// WriteAllocations writes one CSV line per allocation result, joined to the
// address coordinates in joined. person_id numbers the lines from zero in
// result order. Geographic tables get longitude/latitude columns, projected
// ones easting/northing.
func WriteAllocations(path string, joined *geotable.Table, results []allocate.Result) (err error) {
	c, err := crs.Lookup(joined.CRS())
	if err != nil {
		return err
	}
	xName, yName := "longitude", "latitude"
	if !c.Geographic() {
		xName, yName = "easting", "northing"
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "loader: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "loader: close %s", path)
		}
	}()

	buf := bufio.NewWriterSize(f, 1<<16)
	w := csv.NewWriter(buf)
	if err := w.Write([]string{"person_id", "address_id", "region", xName, yName, "feature"}); err != nil {
		return eris.Wrapf(err, "loader: write %s", path)
	}

	index := joined.Index()
	rec := make([]string, 6)
	for i, r := range results {
		pos, ok := index[r.AddressID]
		if !ok {
			return eris.Errorf("loader: address %s in region %s is not in the joined table", r.AddressID, r.Region)
		}
		x, y, _ := joined.Row(pos).Point()
		rec[0] = strconv.Itoa(i)
		rec[1] = r.AddressID
		rec[2] = r.Region
		rec[3] = strconv.FormatFloat(x, 'f', -1, 64)
		rec[4] = strconv.FormatFloat(y, 'f', -1, 64)
		rec[5] = r.Feature
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "loader: write %s", path)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "loader: write %s", path)
	}
	if err := buf.Flush(); err != nil {
		return eris.Wrapf(err, "loader: flush %s", path)
	}
	return nil
}

// WriteReport writes v as YAML.
func WriteReport(path string, v any) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "loader: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "loader: close %s", path)
		}
	}()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return eris.Wrapf(err, "loader: encode report %s", path)
	}
	return eris.Wrap(enc.Close(), "loader: encode report")
}
