package routes

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docshift/converr"
	"docshift/encoder"
	"docshift/job"
	"docshift/logger"
	"docshift/models"
	"docshift/utils"
)

// uploads larger than this spill to disk while the form is parsed
const multipartMemory = 8 << 20

// verifyJWT verifies the bearer token when auth is enabled. With auth
// disabled it returns nil claims and no error.
func (s *Server) verifyJWT(r *http.Request) (*models.Claims, error) {
	if !s.Config.AuthEnabled() {
		return nil, nil
	}

	token, err := utils.BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		return nil, converr.Unauthorized(err)
	}

	claims, err := utils.VerifyToken(token, utils.VerifyConfig{
		SecretKey:      []byte(s.Config.JWTSecret),
		ExpectedIssuer: s.Config.JWTIssuer,
		ClockSkew:      30 * time.Second,
	})
	if err != nil {
		return nil, converr.Unauthorized(err)
	}
	return claims, nil
}

// writeError sends err as plain text with the status its kind maps to
func writeError(w http.ResponseWriter, err error) {
	http.Error(w, converr.Message(err), converr.HTTPStatus(err))
}

// ConvertHandler converts one uploaded file and returns it as an attachment
func (s *Server) ConvertHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	requestID := RequestIDFromContext(r.Context())
	if requestID == "" {
		requestID = utils.NewRequestID()
	}
	log := logger.ForRequest(requestID)

	claims, err := s.verifyJWT(r)
	if err != nil {
		log.Warnf("Rejected token: %v", err)
		writeError(w, err)
		return
	}

	if s.Config.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Config.MaxUploadBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, converr.InputWrap(err, "File too large (limit %d bytes)", tooLarge.Limit))
			return
		}
		log.Debugf("Multipart parse failed: %v", err)
		writeError(w, converr.Input("No file uploaded"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		// a part without a filename is parsed as a plain value
		if _, ok := r.MultipartForm.Value["file"]; ok {
			writeError(w, converr.Input("No file selected"))
			return
		}
		writeError(w, converr.Input("No file uploaded"))
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		writeError(w, converr.Input("No file selected"))
		return
	}

	conversionType := strings.TrimSpace(r.FormValue("conversion_type"))
	if conversionType == "" {
		writeError(w, converr.Input("No conversion type selected"))
		return
	}

	quality, factors, err := parseOptions(r)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Infof("Converting %q with %s", header.Filename, conversionType)
	res, err := s.Dispatcher.Run(r.Context(), job.Request{
		ID:             requestID,
		ConversionType: conversionType,
		SourceName:     header.Filename,
		Body:           file,
		Quality:        quality,
		Enhance:        factors,
		Claims:         claims,
	})
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(res.Filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Data)))
	if res.RemoteJobID != "" {
		w.Header().Set("X-Remote-Job-ID", res.RemoteJobID)
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Data); err != nil {
		log.Warnf("Failed to write response: %v", err)
	}
}

// parseOptions reads the optional quality and enhancement fields
func parseOptions(r *http.Request) (int, encoder.Factors, error) {
	quality := 0
	if v := strings.TrimSpace(r.FormValue("quality")); v != "" {
		q, err := strconv.Atoi(v)
		if err != nil || q < 1 || q > 100 {
			return 0, encoder.Factors{}, converr.Input("Invalid quality %q: must be an integer between 1 and 100", v)
		}
		quality = q
	}

	factors := encoder.DefaultFactors
	for _, f := range []struct {
		field string
		dst   *float64
	}{
		{"brightness", &factors.Brightness},
		{"contrast", &factors.Contrast},
		{"sharpness", &factors.Sharpness},
	} {
		v := strings.TrimSpace(r.FormValue(f.field))
		if v == "" {
			continue
		}
		n, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, encoder.Factors{}, converr.Input("Invalid %s %q", f.field, v)
		}
		*f.dst = n
	}
	return quality, factors, nil
}

// contentDisposition quotes the attachment name, adding the RFC 5987 form
// for names that are not plain ASCII
func contentDisposition(name string) string {
	ascii := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, name)
	v := fmt.Sprintf("attachment; filename=%q", ascii)
	if ascii != name {
		v += "; filename*=UTF-8''" + url.PathEscape(name)
	}
	return v
}
