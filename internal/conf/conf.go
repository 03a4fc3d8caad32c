package conf

import (
	"time"
)

type Bootstrap struct {
	BuildVersion string    `toml:"-"`
	ConfigDir    string    `toml:"-"`
	ConfigPath   string    `toml:"-"`
	Debug        bool      `toml:"-"`
	Server       Server    `comment:"服务配置"`
	Log          Log       `comment:"日志配置"`
	Data         Data      `comment:"数据存储"`
	Capture      Capture   `comment:"直播源分片录制"`
	Alert        Alert     `comment:"告警任务"`
	Inference    Inference `comment:"多模态推理服务"`
	Notify       Notify    `comment:"推送"`
	Archive      Archive   `comment:"问答归档"`
}

type Server struct {
	Debug bool       `comment:"debug 模式下输出请求体"`
	HTTP  ServerHTTP `comment:"对外提供的 http 服务"`
}

type ServerHTTP struct {
	Port    int      `comment:"http 端口"`
	Timeout Duration `comment:"请求超时时间"`
}

type Log struct {
	Level  string `comment:"debug/info/warn/error"`
	Format string `comment:"text/json"`
}

type Data struct {
	Database Database `comment:"留空使用 sqlite，支持 postgres:// 与 mysql:// 连接串"`
}

type Database struct {
	Dsn             string   `comment:"sqlite 时为相对工作目录的文件路径"`
	MaxIdleConns    int32    `comment:"最大空闲连接数"`
	MaxOpenConns    int32    `comment:"最大连接数"`
	ConnMaxLifetime Duration `comment:"连接最大存活时间"`
	SlowThreshold   Duration `comment:"慢查询阈值"`
}

type Capture struct {
	SourceURL     string   `comment:"直播源地址，rtsp/rtmp/http"`
	AutoStart     bool     `comment:"启动时自动开始录制"`
	FFmpegPath    string   `comment:"ffmpeg 可执行文件"`
	ChunkDir      string   `comment:"分片存放目录"`
	ChunkDuration Duration `comment:"单个分片时长"`
	MaxChunks     int      `comment:"最多保留的分片数量，超出时删除最旧的"`
	MinChunkBytes int64    `comment:"小于该大小的分片视为录制失败"`
	Quiescence    Duration `comment:"最近修改时间在该时长内的分片可能仍在写入，读取时跳过"`
	Grace         Duration `comment:"ffmpeg 超时 = 分片时长 + grace"`
	PollInterval  Duration `comment:"等待转码资源时的轮询间隔"`
	ErrorBackoff  Duration `comment:"录制出错后的等待时间"`
}

type Alert struct {
	VideoDir        string   `comment:"待分析视频目录，文件名为 {video_id}.mp4"`
	SegmentDir      string   `comment:"告警切片临时目录"`
	FrameDir        string   `comment:"截图目录"`
	DefaultInterval Duration `comment:"默认切片间隔"`
	Threshold       float64  `comment:"detected 且置信度大于该值时触发告警"`
	MinSegmentBytes int64    `comment:"小于该大小的切片视为切割失败"`
	MaxSegmentBytes int64    `comment:"超过该大小的切片不送推理"`
	StopGrace       Duration `comment:"停止任务后等待多久再清理切片"`
	ExtractGrace    Duration `comment:"ffmpeg 超时 = 切片时长 + grace"`
}

type Inference struct {
	BaseURL         string   `comment:"推理服务地址"`
	APIKey          string   `comment:"环境变量 GEMINI_API_KEY 优先"`
	Model           string   `comment:"问答使用的模型"`
	SegmentModel    string   `comment:"告警切片分析使用的模型"`
	Timeout         Duration `comment:"单次请求超时"`
	MaxVideoBytes   int64    `comment:"视频超过该大小时不附带"`
	MaxImageBytes   int64    `comment:"图片超过该大小时不附带"`
	Temperature     float64
	MaxOutputTokens int
}

type Notify struct {
	WriteTimeout Duration `comment:"单个订阅者的发送超时"`
	PingInterval Duration `comment:"websocket 心跳间隔"`
	MQTT         MQTT     `comment:"Broker 为空时不启用"`
}

type MQTT struct {
	Broker   string `comment:"例如 tcp://127.0.0.1:1883"`
	ClientID string
	Topic    string
	Username string
	Password string
	QoS      byte
}

type Archive struct {
	ResultDir string `comment:"问答结果 json 目录"`
}

// Duration 在配置文件中以 "5m" "300ms" 形式书写
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
