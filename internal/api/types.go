package api

import "github.com/samcharles93/qnbit/internal/runner"

type ResponseError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code,omitempty"`
}

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Profile  string `json:"profile"`
	Features string `json:"features"`
}

type TableInfo struct {
	BitWidth int             `json:"bit_width"`
	Slots    map[string]bool `json:"slots"`
	CompFp32 bool            `json:"comp_fp32"`
	CompInt8 bool            `json:"comp_int8"`
}

type ProfileInfo struct {
	Object   string      `json:"object"`
	Name     string      `json:"name"`
	Detected bool        `json:"detected"`
	Tables   []TableInfo `json:"tables"`
}

type ProfileList struct {
	Object   string        `json:"object"`
	Detected string        `json:"detected"`
	Data     []ProfileInfo `json:"data"`
}

// Problem names a table and the quantization of B. Profile may be empty
// for the detected one; ComputeType may be empty for the table default.
type Problem struct {
	Profile     string `json:"profile,omitempty"`
	BitWidth    int    `json:"bit_width"`
	BlkLen      int    `json:"blk_len"`
	ComputeType string `json:"compute_type,omitempty"`
}

func (p Problem) withDefaults(def Problem) Problem {
	if p.Profile == "" {
		p.Profile = def.Profile
	}
	if p.BitWidth == 0 {
		p.BitWidth = def.BitWidth
	}
	if p.BlkLen == 0 {
		p.BlkLen = def.BlkLen
	}
	if p.ComputeType == "" {
		p.ComputeType = def.ComputeType
	}
	return p
}

type SizesRequest struct {
	Problem
	M     int `json:"m"`
	N     int `json:"n"`
	K     int `json:"k"`
	Batch int `json:"batch,omitempty"`
}

type SizesResponse struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Profile string       `json:"profile"`
	Sizes   runner.Sizes `json:"sizes"`
}

// GemmRequest carries a K×N row-major B and an M×K row-major A.
type GemmRequest struct {
	Problem
	M         int       `json:"m"`
	N         int       `json:"n"`
	K         int       `json:"k"`
	A         []float32 `json:"a"`
	B         []float32 `json:"b"`
	Bias      []float32 `json:"bias,omitempty"`
	Symmetric bool      `json:"symmetric,omitempty"`
	Reference bool      `json:"reference,omitempty"`
}

type GemmResponse struct {
	ID          string    `json:"id"`
	Object      string    `json:"object"`
	Profile     string    `json:"profile"`
	ComputeType string    `json:"compute_type"`
	M           int       `json:"m"`
	N           int       `json:"n"`
	C           []float32 `json:"c"`
	MaxAbsError *float64  `json:"max_abs_error,omitempty"`
}

type WeightsRequest struct {
	Problem
	N         int       `json:"n"`
	K         int       `json:"k"`
	B         []float32 `json:"b"`
	Symmetric bool      `json:"symmetric,omitempty"`
}

type WeightsResponse struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	CreatedAt   int64  `json:"created_at"`
	Profile     string `json:"profile"`
	BitWidth    int    `json:"bit_width"`
	BlkLen      int    `json:"blk_len"`
	ComputeType string `json:"compute_type"`
	N           int    `json:"n"`
	K           int    `json:"k"`
	PackedBytes int    `json:"packed_bytes"`
}

type MultiplyRequest struct {
	M         int       `json:"m"`
	A         []float32 `json:"a"`
	Bias      []float32 `json:"bias,omitempty"`
	Reference bool      `json:"reference,omitempty"`
}

type DeletedResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Deleted bool   `json:"deleted"`
}
