package models

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// NodeStatus 节点状态
type NodeStatus string

const (
	NodeStatusOnline   NodeStatus = "Online"
	NodeStatusOffline  NodeStatus = "Offline"
	NodeStatusAlerting NodeStatus = "Alerting"
)

// NodeInfo 节点信息
type NodeInfo struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"` // 主机名
	IPAddress     string     `json:"ip_address"`
	APIPort       int        `json:"api_port"`
	LastHeartbeat int64      `json:"last_heartbeat"` // Unix 秒
	Status        NodeStatus `json:"status"`
	OSInfo        string     `json:"os_info"`
	Version       string     `json:"version"`
}

// APIURL 节点 HTTP API 地址
func (n NodeInfo) APIURL() string {
	return fmt.Sprintf("http://%s", net.JoinHostPort(n.IPAddress, strconv.Itoa(n.APIPort)))
}

// IsOnline 心跳是否在超时时间内
func (n NodeInfo) IsOnline(now time.Time, timeout time.Duration) bool {
	return now.Unix()-n.LastHeartbeat < int64(timeout/time.Second)
}

// Properties 用于服务广播的 TXT 属性
func (n NodeInfo) Properties() map[string]string {
	return map[string]string{
		"id":      n.ID,
		"name":    n.Name,
		"os_info": n.OSInfo,
		"version": n.Version,
	}
}
