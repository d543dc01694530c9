package workflow

import (
	"bytes"
	"net/http"
	"regexp"
	"testing"

	"github.com/niczy/designtree/internal/assets"
	"github.com/niczy/designtree/internal/upload"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const svgBody = `<svg xmlns="http://www.w3.org/2000/svg"><circle r="1"/></svg>`

// uploadSVG posts one asset for fileID to the page folder pageUUID of project.
func uploadSVG(t *testing.T, projectID, pageUUID, fileID string) {
	t.Helper()
	var body bytes.Buffer
	contentType, err := upload.Encode(&body, upload.Form{
		Folder: projectID,
		Parts:  []upload.Part{{PageUUID: pageUUID, FileID: fileID, Ext: assets.Ext, Body: []byte(svgBody)}},
	})
	if err != nil {
		t.Fatalf("encode upload failed: %v", err)
	}
	resp, err := http.Post(assetServerURL+"/upload", contentType, &body)
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload of %s returned %d", fileID, resp.StatusCode)
	}
}

func assertCode(t *testing.T, err error, code codes.Code) {
	t.Helper()
	if status.Code(err) != code {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

var hashLine = regexp.MustCompile(`Hash: ([0-9a-f]{64})`)

func extractHash(output string) string {
	matches := hashLine.FindStringSubmatch(output)
	if len(matches) < 2 {
		return ""
	}
	return matches[1]
}
