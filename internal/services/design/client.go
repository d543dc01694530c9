package designservice

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/niczy/designtree/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client calls the design service over an existing connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Call invokes method with req encoded as a Struct and decodes the reply into resp when it is non-nil.
func (c *Client) Call(ctx context.Context, method string, req any, resp any) error {
	in, err := encode(req)
	if err != nil {
		return err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return err
	}
	if resp == nil {
		return nil
	}
	return decode(out, resp)
}

// ProjectReply is the decoded form of a project response.
type ProjectReply struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Structure string `json:"structure"`
}

// Decode parses the structure carried as JSON text.
func (r ProjectReply) Decode() (*models.Structure, error) {
	var s models.Structure
	if err := json.Unmarshal([]byte(r.Structure), &s); err != nil {
		return nil, fmt.Errorf("decode structure: %w", err)
	}
	s.Normalize()
	return &s, nil
}
