// Package modbushttp carries Modbus RTU frames to cmd/modbus_server over
// HTTP, for drives attached to another machine.
package modbushttp

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goburrow/modbus"
)

// SendResponse is the bridge's answer to one request frame.
type SendResponse struct {
	ADUResponse []byte
	Error       string
}

// Client frames requests with an RTU packager and sends them to the bridge
// instead of a serial port.
type Client struct {
	*modbus.RTUClientHandler

	// Password is sent as HTTP basic auth when set
	Password string
	HTTP     *http.Client

	baseURL string
}

func NewClient(baseURL string) *Client {
	handler := modbus.NewRTUClientHandler("/dev/null")
	handler.SlaveId = 1
	return &Client{
		RTUClientHandler: handler,
		HTTP:             &http.Client{Timeout: 5 * time.Second},
		baseURL:          baseURL,
	}
}

func (c *Client) Send(aduRequest []byte) ([]byte, error) {
	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewReader(aduRequest))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")
	if c.Password != "" {
		req.SetBasicAuth("em2rs", c.Password)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status code: %s\n%s", resp.Status, string(body))
	}
	var sendResponse SendResponse
	if err := json.Unmarshal(body, &sendResponse); err != nil {
		return nil, err
	}
	if sendResponse.Error != "" {
		err = errors.New(sendResponse.Error)
	}
	return sendResponse.ADUResponse, err
}

func (c *Client) Connect() error {
	return nil
}

func (c *Client) Close() error {
	return nil
}
