package alert

import (
	"net"
	"net/http"
	"sync"
	"time"
)

// 节点间投递共用一个带连接池的客户端，单次超时由 context 控制
var (
	peerHTTPClient *http.Client
	peerClientOnce sync.Once
)

// PeerHTTPClient 返回节点间通信用的 HTTP 客户端
func PeerHTTPClient() *http.Client {
	peerClientOnce.Do(func() {
		transport := &http.Transport{
			// 局域网节点数量有限
			MaxIdleConns:        64,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,

			DialContext: (&net.Dialer{
				Timeout:   3 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,

			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}

		peerHTTPClient = &http.Client{
			Transport: transport,
		}
	})

	return peerHTTPClient
}
