package upload

import (
	"bytes"
	"fmt"
	"io"
	"mime/multipart"
)

// Form field names of an upload request.
const (
	FieldFolder    = "folder"
	FieldStructure = "structure"
	FieldFiles     = "files"
)

// Form is a decoded upload request.
type Form struct {
	Folder    string
	Structure []byte
	Parts     []Part
}

// Encode writes f as a multipart body and returns its content type.
func Encode(w io.Writer, f Form) (string, error) {
	mw := multipart.NewWriter(w)
	if err := mw.WriteField(FieldFolder, f.Folder); err != nil {
		return "", err
	}
	if err := mw.WriteField(FieldStructure, string(f.Structure)); err != nil {
		return "", err
	}
	for _, p := range f.Parts {
		fw, err := mw.CreateFormFile(FieldFiles, p.Name())
		if err != nil {
			return "", err
		}
		if _, err := fw.Write(p.Body); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}

// Decode reads a multipart upload. File parts are routed by their file name.
func Decode(r *multipart.Reader, maxPartSize int64) (Form, error) {
	var f Form
	for {
		part, err := r.NextPart()
		if err == io.EOF {
			return f, nil
		}
		if err != nil {
			return f, err
		}

		var buf bytes.Buffer
		n, err := io.Copy(&buf, io.LimitReader(part, maxPartSize+1))
		part.Close()
		if err != nil {
			return f, err
		}
		if n > maxPartSize {
			return f, fmt.Errorf("%w: %q exceeds %d bytes", ErrPartTooLarge, part.FormName(), maxPartSize)
		}

		switch part.FormName() {
		case FieldFolder:
			f.Folder = buf.String()
		case FieldStructure:
			f.Structure = buf.Bytes()
		case FieldFiles:
			pageUUID, fileID, ext, err := ParsePartName(part.FileName())
			if err != nil {
				return f, err
			}
			f.Parts = append(f.Parts, Part{PageUUID: pageUUID, FileID: fileID, Ext: ext, Body: buf.Bytes()})
		}
	}
}
