package batch

import (
	"encoding/base64"
	"encoding/json"
	"errors"
)

// Result 单张图片的处理结果，成功时 Image 为去背景后的图片，失败时 Err 非空
type Result struct {
	OriginalURL string
	Image       []byte
	Err         error
}

func (r Result) Failed() bool {
	return r.Err != nil
}

type resultJSON struct {
	OriginalURL          string  `json:"original_url"`
	ProcessedImageBase64 *string `json:"processed_image_base64,omitempty"`
	Error                *string `json:"error,omitempty"`
}

// MarshalJSON 成功输出 {original_url, processed_image_base64}，失败输出 {original_url, error}
func (r Result) MarshalJSON() ([]byte, error) {
	out := resultJSON{OriginalURL: r.OriginalURL}
	if r.Err != nil {
		msg := r.Err.Error()
		out.Error = &msg
	} else {
		encoded := base64.StdEncoding.EncodeToString(r.Image)
		out.ProcessedImageBase64 = &encoded
	}
	return json.Marshal(out)
}

func (r *Result) UnmarshalJSON(data []byte) error {
	var in resultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	r.OriginalURL = in.OriginalURL
	r.Image = nil
	r.Err = nil
	if in.Error != nil {
		r.Err = errors.New(*in.Error)
		return nil
	}
	if in.ProcessedImageBase64 != nil {
		img, err := base64.StdEncoding.DecodeString(*in.ProcessedImageBase64)
		if err != nil {
			return err
		}
		r.Image = img
	}
	return nil
}
