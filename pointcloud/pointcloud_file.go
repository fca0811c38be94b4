package pointcloud

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// PCDType is the format of a pcd file.
type PCDType int

const (
	// PCDAscii ascii format for pcd.
	PCDAscii PCDType = 0
	// PCDBinary binary format for pcd.
	PCDBinary PCDType = 1
)

// ToPCD writes the cloud in PCD v0.7 format. Clouds with values get a 4-byte signed "label" field.
// Coordinates are written in the cloud's own units.
func ToPCD(cloud Reader, out io.Writer, outputType PCDType) error {
	var dataLine string
	switch outputType {
	case PCDAscii:
		dataLine = "DATA ascii\n"
	case PCDBinary:
		dataLine = "DATA binary\n"
	default:
		return errors.Errorf("unsupported PCD type %d", outputType)
	}

	hasValue := cloud.MetaData().HasValue
	if _, err := fmt.Fprintf(out, "VERSION .7\n"); err != nil {
		return err
	}
	var err error
	if hasValue {
		_, err = fmt.Fprintf(out, "FIELDS x y z label\n"+
			"SIZE 4 4 4 4\n"+
			"TYPE F F F I\n"+
			"COUNT 1 1 1 1\n")
	} else {
		_, err = fmt.Fprintf(out, "FIELDS x y z\n"+
			"SIZE 4 4 4\n"+
			"TYPE F F F\n"+
			"COUNT 1 1 1\n")
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(out, "WIDTH %d\n"+
		"HEIGHT %d\n"+
		"VIEWPOINT 0 0 0 1 0 0 0\n"+
		"POINTS %d\n",
		cloud.Size(),
		1,
		cloud.Size())
	if err != nil {
		return err
	}
	if _, err := io.WriteString(out, dataLine); err != nil {
		return err
	}
	return writePCDData(cloud, out, outputType, hasValue)
}

func writePCDData(cloud Reader, out io.Writer, pcdtype PCDType, hasValue bool) error {
	var err error
	buf := make([]byte, 16)
	cloud.Iterate(0, 0, func(pos r3.Vector, d Data) bool {
		label := 0
		if hasValue && d != nil && d.HasValue() {
			label = d.Value()
		}
		switch pcdtype {
		case PCDBinary:
			binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(pos.X)))
			binary.LittleEndian.PutUint32(buf[4:], math.Float32bits(float32(pos.Y)))
			binary.LittleEndian.PutUint32(buf[8:], math.Float32bits(float32(pos.Z)))
			n := 12
			if hasValue {
				binary.LittleEndian.PutUint32(buf[12:], uint32(int32(label)))
				n = 16
			}
			_, err = out.Write(buf[:n])
		case PCDAscii:
			if hasValue {
				_, err = fmt.Fprintf(out, "%f %f %f %d\n", pos.X, pos.Y, pos.Z, label)
			} else {
				_, err = fmt.Fprintf(out, "%f %f %f\n", pos.X, pos.Y, pos.Z)
			}
		}
		return err == nil
	})
	return err
}

// WriteToPCDFile writes the cloud to the named file, creating or truncating it.
func WriteToPCDFile(cloud Reader, fn string, outputType PCDType) (err error) {
	//nolint:gosec
	f, err := os.Create(fn)
	if err != nil {
		return errors.Wrapf(err, "cannot create %q", fn)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	w := bufio.NewWriter(f)
	if err := ToPCD(cloud, w, outputType); err != nil {
		return err
	}
	return w.Flush()
}
