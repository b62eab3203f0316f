package cookies

import (
	"net/url"
	"strings"
	"sync"
)

// Store 保存扩展同步过来的站点 cookie，按域名索引。
// 核心只消费这些 cookie，不拥有浏览器的 cookie 存储。
type Store struct {
	mu      sync.RWMutex
	domains map[string]map[string]string
}

func NewStore() *Store {
	return &Store{domains: make(map[string]map[string]string)}
}

// Set 整体替换一个域名下的 cookie
func (s *Store) Set(domain string, values map[string]string) {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return
	}
	copied := make(map[string]string, len(values))
	for k, v := range values {
		copied[k] = v
	}
	s.mu.Lock()
	s.domains[domain] = copied
	s.mu.Unlock()
}

// Delete 清除一个域名的 cookie
func (s *Store) Delete(domain string) {
	s.mu.Lock()
	delete(s.domains, strings.ToLower(domain))
	s.mu.Unlock()
}

// Resolve 返回对目标 URL 生效的 name→value 映射。
// 同名 cookie 按最具体域名优先：精确域 > 点前缀精确域 > 父域 > 点前缀父域。
func (s *Store) Resolve(rawURL string) map[string]string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return map[string]string{}
	}
	host := strings.ToLower(u.Hostname())

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := map[string]string{}
	// 从最不具体到最具体依次覆盖，留下来的就是最具体的值
	for _, domain := range candidateDomains(host) {
		if vals, ok := s.domains[domain]; ok {
			for k, v := range vals {
				result[k] = v
			}
		}
	}
	return result
}

// candidateDomains 生成匹配域名列表，按优先级从低到高：
// 最短父域的点前缀形式在最前，精确域在最后
func candidateDomains(host string) []string {
	labels := strings.Split(host, ".")

	var ordered []string
	// 从最宽的父域开始 (至少两级，如 example.com)
	for i := len(labels) - 2; i >= 1; i-- {
		parent := strings.Join(labels[i:], ".")
		ordered = append(ordered, "."+parent, parent)
	}
	ordered = append(ordered, "."+host, host)
	return ordered
}
